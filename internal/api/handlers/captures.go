package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"airfield-sentinel-go/internal/logging"
	"airfield-sentinel-go/internal/services/capture"
)

type CaptureControl interface {
	Sessions() []capture.SessionInfo
	ForceStop(incidentID string) error
	ForceStopAll() int
	PoolStats() capture.PoolStats
}

type CaptureHandler struct {
	capture CaptureControl
}

func NewCaptureHandler(c CaptureControl) *CaptureHandler {
	return &CaptureHandler{capture: c}
}

type CaptureListResponse struct {
	Sessions []capture.SessionInfo `json:"sessions"`
	Encoder  capture.PoolStats     `json:"encoder"`
}

type ForceStopResponse struct {
	Stopped int `json:"stopped" example:"2"`
}

// @Summary List capture sessions
// @Tags captures
// @Produce json
// @Success 200 {object} CaptureListResponse
// @Router /captures [get]
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	sessions := h.capture.Sessions()
	if sessions == nil {
		sessions = []capture.SessionInfo{}
	}
	c.JSON(http.StatusOK, CaptureListResponse{Sessions: sessions, Encoder: h.capture.PoolStats()})
}

// @Summary Stop one capture now
// @Tags captures
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} ForceStopResponse
// @Failure 404 {object} ErrorResponse
// @Router /captures/{id}/stop [post]
func (h *CaptureHandler) StopCapture(c *gin.Context) {
	id := c.Param("id")
	if err := h.capture.ForceStop(id); err != nil {
		if errors.Is(err, capture.ErrUnknownSession) {
			fail(c, http.StatusNotFound, err)
			return
		}
		fail(c, http.StatusInternalServerError, err)
		return
	}
	logging.Info(c).Str("incident_id", id).Msg("Capture force-stopped")
	c.JSON(http.StatusOK, ForceStopResponse{Stopped: 1})
}

// @Summary Stop every capture now
// @Tags captures
// @Produce json
// @Success 200 {object} ForceStopResponse
// @Router /captures/force-stop [post]
func (h *CaptureHandler) ForceStopAll(c *gin.Context) {
	n := h.capture.ForceStopAll()
	logging.Info(c).Int("stopped", n).Msg("All captures force-stopped")
	c.JSON(http.StatusOK, ForceStopResponse{Stopped: n})
}
