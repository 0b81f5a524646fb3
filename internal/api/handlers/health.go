package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck is one named liveness probe.
type HealthCheck func() bool

type HealthHandler struct {
	WorkerID string
	Version  string
	checks   map[string]HealthCheck
}

func NewHealthHandler(workerID, version string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, checks: checks}
}

type HealthResponse struct {
	Status   string          `json:"status" example:"healthy"`
	WorkerID string          `json:"worker_id" example:"sentinel-1"`
	Checks   map[string]bool `json:"checks"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"sentinel-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Reports each subsystem check; 503 when any fails
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", WorkerID: h.WorkerID, Checks: map[string]bool{}}
	for name, check := range h.checks {
		ok := check()
		resp.Checks[name] = ok
		if !ok {
			resp.Status = "degraded"
		}
	}
	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// @Summary Worker information
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"proximity_detection",
			"zone_monitoring",
			"camera_arbitration",
			"incident_capture",
		},
	})
}
