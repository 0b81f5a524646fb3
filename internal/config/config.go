package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	GRPCPort    int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Storage
	CaptureRoot string
	DBPath      string
	ScenePath   string

	// NATS (event fan-out and actor telemetry)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration
	EventsSubject      string
	ActorsSubject      string

	// Geo reference
	GeoRefLat        float64
	GeoRefLon        float64
	GeoYScale        float64
	GeoYOffset       float64
	GeoControlPoints string // "name:lat,lon,x,z;..." (name optional)

	// Scene root transform applied before geo enrichment
	RootX     float64
	RootY     float64
	RootZ     float64
	RootYaw   float64
	RootScale float64

	// Proximity detection
	DetectHz           float64
	QueryRadiusM       float64
	WarnClearanceM     float64
	IncidentClearanceM float64
	PredictTTCSec      float64
	ClosingSpeedFloor  float64
	MaxCandidates      int
	RequireMarker      bool
	UseTags            bool
	AircraftTag        string
	ObstacleTag        string
	PairTableSize      int

	// Camera arbitration
	CameraRequireMarker       bool
	CameraIgnore              []string
	CameraIgnoreNameContains  []string
	CameraSkipOverlay         bool
	CameraIgnoreVehicle       bool
	CameraCooldown            time.Duration
	CameraSlerp               float64
	CameraFrustumMode         bool
	CameraBase                string
	CameraFocusLiftM          float64
	CameraOccluderCheck       bool
	CameraDefaultMinFOV       float64
	CameraDefaultMaxFOV       float64
	CaptureFollowActiveCamera bool

	// Capture
	CaptureWidth       int
	CaptureHeight      int
	CaptureFPS         int
	PreRollEnabled     bool
	PreRollSec         float64
	IdleTimeoutEnabled bool
	IdleTimeoutSec     float64
	PostRollSec        float64
	ArmOnPredicted     bool
	CaptureMode        string // "multi" records every incident, "single" one at a time
	CaptureCamera      string // fallback camera for single mode
	PreviewEnabled     bool
	PreviewFPS         float64

	// Encoding
	EncodeOnStop       bool
	FFmpegPath         string
	EncodeOutput       string
	EncodeCRF          int
	EncodePreset       string
	CleanupAfterEncode bool
	EncodeWorkers      int
	EncodeQueue        int

	// Simulation loop
	LoopInterval  time.Duration
	PlaybackStart float64
	PlaybackEnd   float64

	// Swagger Configuration
	SwaggerHost string
	SwaggerPort int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "sentinel-1"),
		Port:        getEnvInt("PORT", 8000),
		GRPCPort:    getEnvInt("GRPC_PORT", 8001),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Storage
		CaptureRoot: getEnv("CAPTURE_ROOT", "Captures"),
		DBPath:      getEnv("DB_PATH", "incidents.db"),
		ScenePath:   getEnv("SCENE_PATH", ""),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", true),
		NatsURL:            getNatsURL(),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:   getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		EventsSubject:      getEnv("EVENTS_SUBJECT", "incidents.events"),
		ActorsSubject:      getEnv("ACTORS_SUBJECT", "actors.telemetry"),

		// Geo reference (KGSO by default)
		GeoRefLat:        getEnvFloat("GEO_REF_LAT", 36.0920),
		GeoRefLon:        getEnvFloat("GEO_REF_LON", -79.9357),
		GeoYScale:        getEnvFloat("GEO_Y_SCALE", 1),
		GeoYOffset:       getEnvFloat("GEO_Y_OFFSET", 0),
		GeoControlPoints: getEnv("GEO_CONTROL_POINTS", ""),

		RootX:     getEnvFloat("ROOT_X", 0),
		RootY:     getEnvFloat("ROOT_Y", 0),
		RootZ:     getEnvFloat("ROOT_Z", 0),
		RootYaw:   getEnvFloat("ROOT_YAW_DEG", 0),
		RootScale: getEnvFloat("ROOT_SCALE", 1),

		// Proximity detection
		DetectHz:           getEnvFloat("DETECT_HZ", 50),
		QueryRadiusM:       getEnvFloat("QUERY_RADIUS_M", 80),
		WarnClearanceM:     getEnvFloat("WARN_CLEARANCE_M", 60),
		IncidentClearanceM: getEnvFloat("INCIDENT_CLEARANCE_M", 50),
		PredictTTCSec:      getEnvFloat("PREDICT_TTC_SEC", 6),
		ClosingSpeedFloor:  getEnvFloat("CLOSING_SPEED_FLOOR", 0.05),
		MaxCandidates:      getEnvInt("MAX_CANDIDATES", 64),
		RequireMarker:      getEnvBool("REQUIRE_MARKER", true),
		UseTags:            getEnvBool("USE_TAGS", false),
		AircraftTag:        getEnv("AIRCRAFT_TAG", "Aircraft"),
		ObstacleTag:        getEnv("OBSTACLE_TAG", "Obstacle"),
		PairTableSize:      getEnvInt("PAIR_TABLE_SIZE", 4096),

		// Camera arbitration
		CameraRequireMarker:       getEnvBool("CAMERA_REQUIRE_MARKER", true),
		CameraIgnore:              getEnvList("CAMERA_IGNORE", nil),
		CameraIgnoreNameContains:  getEnvList("CAMERA_IGNORE_NAME_CONTAINS", []string{"Chase"}),
		CameraSkipOverlay:         getEnvBool("CAMERA_SKIP_OVERLAY", true),
		CameraIgnoreVehicle:       getEnvBool("CAMERA_IGNORE_VEHICLE", true),
		CameraCooldown:            getEnvDuration("CAMERA_COOLDOWN", 500*time.Millisecond),
		CameraSlerp:               getEnvFloat("CAMERA_SLERP", 0.25),
		CameraFrustumMode:         getEnvBool("CAMERA_FRUSTUM_MODE", false),
		CameraBase:                getEnv("CAMERA_BASE", ""),
		CameraFocusLiftM:          getEnvFloat("CAMERA_FOCUS_LIFT_M", 3),
		CameraOccluderCheck:       getEnvBool("CAMERA_OCCLUDER_CHECK", true),
		CameraDefaultMinFOV:       getEnvFloat("CAMERA_MIN_FOV", 20),
		CameraDefaultMaxFOV:       getEnvFloat("CAMERA_MAX_FOV", 60),
		CaptureFollowActiveCamera: getEnvBool("CAPTURE_FOLLOW_ACTIVE_CAMERA", true),

		// Capture
		CaptureWidth:       getEnvInt("CAPTURE_WIDTH", 1280),
		CaptureHeight:      getEnvInt("CAPTURE_HEIGHT", 720),
		CaptureFPS:         getEnvInt("CAPTURE_FPS", 30),
		PreRollEnabled:     getEnvBool("PREROLL_ENABLED", true),
		PreRollSec:         getEnvFloat("PREROLL_SEC", 5),
		IdleTimeoutEnabled: getEnvBool("IDLE_TIMEOUT_ENABLED", true),
		IdleTimeoutSec:     getEnvFloat("IDLE_TIMEOUT_SEC", 6),
		PostRollSec:        getEnvFloat("POSTROLL_SEC", 5),
		ArmOnPredicted:     getEnvBool("CAPTURE_ARM_ON_PREDICTED", false),
		CaptureMode:        getEnv("CAPTURE_MODE", "multi"),
		CaptureCamera:      getEnv("CAPTURE_CAMERA", ""),
		PreviewEnabled:     getEnvBool("PREVIEW_ENABLED", true),
		PreviewFPS:         getEnvFloat("PREVIEW_FPS", 5),

		// Encoding
		EncodeOnStop:       getEnvBool("ENCODE_ON_STOP", true),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		EncodeOutput:       getEnv("ENCODE_OUTPUT", "incident.mp4"),
		EncodeCRF:          getEnvInt("ENCODE_CRF", 23),
		EncodePreset:       getEnv("ENCODE_PRESET", "veryfast"),
		CleanupAfterEncode: getEnvBool("CLEANUP_AFTER_ENCODE", true),
		EncodeWorkers:      getEnvInt("ENCODE_WORKERS", 2),
		EncodeQueue:        getEnvInt("ENCODE_QUEUE", 16),

		// Simulation loop
		LoopInterval:  getEnvDuration("LOOP_INTERVAL", 5*time.Millisecond),
		PlaybackStart: getEnvFloat("PLAYBACK_START_SEC", 0),
		PlaybackEnd:   getEnvFloat("PLAYBACK_END_SEC", 0), // 0 = unbounded

		// Swagger Configuration
		SwaggerHost: getEnv("SWAGGER_HOST", "localhost"),
		SwaggerPort: getEnvInt("SWAGGER_PORT", 8000),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate checks cross-field invariants and normalises values that have a safe correction.
func (c *Config) Validate() error {
	if c.IncidentClearanceM >= c.WarnClearanceM {
		return fmt.Errorf("incident clearance %.2fm must be below warn clearance %.2fm", c.IncidentClearanceM, c.WarnClearanceM)
	}
	if c.DetectHz <= 0 {
		return fmt.Errorf("detect hz must be positive, got %v", c.DetectHz)
	}
	if c.CaptureFPS < 1 {
		c.CaptureFPS = 1
	}
	if c.CaptureWidth < 2 {
		c.CaptureWidth = 2
	}
	if c.CaptureHeight < 2 {
		c.CaptureHeight = 2
	}
	// Encoders reject odd dimensions
	c.CaptureWidth += c.CaptureWidth % 2
	c.CaptureHeight += c.CaptureHeight % 2
	if c.EncodeCRF < 0 || c.EncodeCRF > 51 {
		return fmt.Errorf("encode crf must be in [0,51], got %d", c.EncodeCRF)
	}
	if c.EncodeWorkers < 1 {
		c.EncodeWorkers = 1
	}
	if c.EncodeQueue < 1 {
		c.EncodeQueue = 1
	}
	if c.PairTableSize < 1 {
		c.PairTableSize = 1
	}
	switch c.CaptureMode {
	case "", "multi":
		c.CaptureMode = "multi"
	case "single":
	default:
		return fmt.Errorf("capture mode must be multi or single, got %q", c.CaptureMode)
	}
	if c.PlaybackEnd != 0 && c.PlaybackEnd < c.PlaybackStart {
		return fmt.Errorf("playback end %.2f before start %.2f", c.PlaybackEnd, c.PlaybackStart)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
