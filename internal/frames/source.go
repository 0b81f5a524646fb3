package frames

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"airfield-sentinel-go/internal/models"
)

const maxConsecutiveErrors = 10

// VideoSource feeds a rig from a real or recorded stream. The view pose is
// ignored because the stream's camera is physical.
type VideoSource struct {
	url    string
	logger zerolog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	img    gocv.Mat
	errors int
}

func OpenVideoSource(url string, logger zerolog.Logger) (*VideoSource, error) {
	s := &VideoSource{url: url, logger: logger, img: gocv.NewMat()}
	if err := s.open(); err != nil {
		s.img.Close()
		return nil, err
	}
	return s, nil
}

func (s *VideoSource) open() error {
	c, err := gocv.OpenVideoCaptureWithAPI(s.url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.url, err)
	}
	if !c.IsOpened() {
		c.Close()
		return fmt.Errorf("video capture not opened for %s", s.url)
	}
	c.Set(gocv.VideoCaptureBufferSize, 1)
	s.cap = c
	s.logger.Info().
		Str("url", s.url).
		Float64("fps", c.Get(gocv.VideoCaptureFPS)).
		Float64("width", c.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", c.Get(gocv.VideoCaptureFrameHeight)).
		Msg("Video source opened")
	return nil
}

func (s *VideoSource) Render(_ models.Pose, _ float64, dst *models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if ok := s.cap.Read(&s.img); !ok || s.img.Empty() {
		s.errors++
		if s.errors >= maxConsecutiveErrors {
			s.logger.Warn().Str("url", s.url).Int("consecutive_errors", s.errors).Msg("Resetting video source")
			s.cap.Close()
			s.cap = nil
			s.errors = 0
		}
		return fmt.Errorf("no frame from %s", s.url)
	}
	s.errors = 0
	return copyMat(s.img, dst)
}

func (s *VideoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap != nil {
		s.cap.Close()
		s.cap = nil
	}
	return s.img.Close()
}

// SyntheticSource draws a horizon and heading overlay from the rig pose. It
// stands in for the renderer when a rig has no stream.
type SyntheticSource struct {
	Label string
}

var (
	skyColor    = color.RGBA{R: 135, G: 170, B: 205}
	groundColor = color.RGBA{R: 70, G: 75, B: 70}
	textColor   = color.RGBA{R: 255, G: 255, B: 255}
)

func (s SyntheticSource) Render(view models.Pose, fov float64, dst *models.Frame) error {
	mat := gocv.NewMatWithSize(dst.Height, dst.Width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	if fov <= 0 {
		fov = 60
	}
	// Horizon row for the current pitch.
	tanHalf := math.Tan(fov * math.Pi / 360)
	offset := math.Tan(view.PitchDeg*math.Pi/180) / tanHalf
	horizon := int(float64(dst.Height) * (0.5 + 0.5*offset))
	horizon = min(max(horizon, 0), dst.Height)

	if horizon > 0 {
		gocv.Rectangle(&mat, image.Rect(0, 0, dst.Width, horizon), skyColor, -1)
	}
	if horizon < dst.Height {
		gocv.Rectangle(&mat, image.Rect(0, horizon, dst.Width, dst.Height), groundColor, -1)
	}

	label := fmt.Sprintf("%s hdg %03.0f fov %.0f", s.Label, math.Mod(view.YawDeg+360, 360), fov)
	gocv.PutText(&mat, label, image.Pt(8, 20), gocv.FontHersheyPlain, 1.2, textColor, 1)

	return copyBytes(mat, dst)
}
