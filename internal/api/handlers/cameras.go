package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang/geo/r3"

	"airfield-sentinel-go/internal/frames"
	"airfield-sentinel-go/internal/logging"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/arbiter"
)

type CameraRegistry interface {
	Rigs() []models.CameraRig
	Rig(name string) (models.CameraRig, bool)
	Active() string
	LastSelection() arbiter.Selection
	Activate(name string) error
	Aim(name string, focus r3.Vector, minFOV, maxFOV float64) error
}

type CameraHandler struct {
	cameras       CameraRegistry
	width, height int
}

func NewCameraHandler(cameras CameraRegistry, snapshotWidth, snapshotHeight int) *CameraHandler {
	return &CameraHandler{cameras: cameras, width: snapshotWidth, height: snapshotHeight}
}

type CameraListResponse struct {
	Active        string             `json:"active"`
	LastSelection arbiter.Selection  `json:"lastSelection"`
	Cameras       []models.CameraRig `json:"cameras"`
}

type AimRequest struct {
	Focus  r3.Vector `json:"focus"`
	MinFOV float64   `json:"minFov" example:"20"`
	MaxFOV float64   `json:"maxFov" example:"60"`
}

// @Summary List cameras
// @Tags cameras
// @Produce json
// @Success 200 {object} CameraListResponse
// @Router /cameras [get]
func (h *CameraHandler) ListCameras(c *gin.Context) {
	c.JSON(http.StatusOK, CameraListResponse{
		Active:        h.cameras.Active(),
		LastSelection: h.cameras.LastSelection(),
		Cameras:       h.cameras.Rigs(),
	})
}

// @Summary Enable a camera
// @Description Makes the camera the only enabled rig apart from the base camera
// @Tags cameras
// @Produce json
// @Param name path string true "Camera name"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{name}/enable [post]
func (h *CameraHandler) EnableCamera(c *gin.Context) {
	name := c.Param("name")
	if err := h.cameras.Activate(name); err != nil {
		cameraError(c, err)
		return
	}
	logging.Info(c).Str("camera", name).Msg("Camera enabled")
	c.JSON(http.StatusOK, SuccessResponse{Message: "camera enabled"})
}

// @Summary Aim a camera
// @Tags cameras
// @Accept json
// @Produce json
// @Param name path string true "Camera name"
// @Param request body AimRequest true "Focus point and FOV bounds"
// @Success 200 {object} models.CameraRig
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{name}/aim [post]
func (h *CameraHandler) AimCamera(c *gin.Context) {
	req := AimRequest{MinFOV: 20, MaxFOV: 60}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	name := c.Param("name")
	if err := h.cameras.Aim(name, req.Focus, req.MinFOV, req.MaxFOV); err != nil {
		cameraError(c, err)
		return
	}
	rig, _ := h.cameras.Rig(name)
	c.JSON(http.StatusOK, rig)
}

// @Summary Camera snapshot
// @Description Renders the camera's current view as JPEG
// @Tags cameras
// @Produce image/jpeg
// @Param name path string true "Camera name"
// @Param quality query int false "JPEG quality (default 75)"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /cameras/{name}/snapshot [get]
func (h *CameraHandler) Snapshot(c *gin.Context) {
	rig, ok := h.cameras.Rig(c.Param("name"))
	if !ok {
		fail(c, http.StatusNotFound, arbiter.ErrUnknownCamera)
		return
	}
	if rig.Source == nil {
		fail(c, http.StatusBadGateway, errors.New("camera has no frame source"))
		return
	}
	quality, err := strconv.Atoi(c.DefaultQuery("quality", "75"))
	if err != nil || quality < 1 || quality > 100 {
		quality = 75
	}

	frame := models.NewFrame(h.width, h.height)
	if err := rig.Source.Render(rig.View(), rig.FOV, frame); err != nil {
		logging.Warn(c).Err(err).Str("camera", rig.Name).Msg("Snapshot render failed")
		fail(c, http.StatusBadGateway, err)
		return
	}
	data, err := frames.EncodeJPEG(frame, quality)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func cameraError(c *gin.Context, err error) {
	if errors.Is(err, arbiter.ErrUnknownCamera) {
		fail(c, http.StatusNotFound, err)
		return
	}
	fail(c, http.StatusInternalServerError, err)
}
