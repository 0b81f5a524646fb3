package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Streamer serves a live MJPEG view of a camera.
type Streamer interface {
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, camera string)
}

type PreviewHandler struct {
	streamer Streamer
}

func NewPreviewHandler(s Streamer) *PreviewHandler {
	return &PreviewHandler{streamer: s}
}

// @Summary Live MJPEG preview
// @Description Streams the camera while it is the arbiter's active camera
// @Tags cameras
// @Produce multipart/x-mixed-replace
// @Param name path string true "Camera name"
// @Success 200
// @Failure 503 {object} ErrorResponse
// @Router /cameras/{name}/stream [get]
func (h *PreviewHandler) Stream(c *gin.Context) {
	if h.streamer == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("preview disabled"))
		return
	}
	h.streamer.StreamMJPEGHTTP(c.Writer, c.Request, c.Param("name"))
}
