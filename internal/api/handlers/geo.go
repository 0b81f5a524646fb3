package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang/geo/r3"

	"airfield-sentinel-go/internal/geo"
	"airfield-sentinel-go/internal/logging"
)

type GeoHandler struct {
	mapper *geo.Mapper
}

func NewGeoHandler(m *geo.Mapper) *GeoHandler {
	return &GeoHandler{mapper: m}
}

type ControlPointsRequest struct {
	Points []geo.ControlPoint `json:"points" binding:"required"`
}

type CalibrateRequest struct {
	A geo.GeoPoint `json:"a"`
	B geo.GeoPoint `json:"b"`
}

type ConvertResponse struct {
	Working r3.Vector `json:"working"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Alt     float64   `json:"alt"`
}

// @Summary Geo mapper status
// @Tags geo
// @Produce json
// @Success 200 {object} geo.Status
// @Router /geo [get]
func (h *GeoHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.mapper.Status())
}

// @Summary Refit control points
// @Description Replaces the control points and solves the affine fit
// @Tags geo
// @Accept json
// @Produce json
// @Param request body ControlPointsRequest true "Control points"
// @Success 200 {object} geo.Status
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /geo/control-points [post]
func (h *GeoHandler) SetControlPoints(c *gin.Context) {
	var req ControlPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.mapper.Fit(req.Points); err != nil {
		logging.Warn(c).Err(err).Int("points", len(req.Points)).Msg("Geo fit rejected")
		status := http.StatusInternalServerError
		if errors.Is(err, geo.ErrTooFewPoints) || errors.Is(err, geo.ErrSingular) {
			status = http.StatusUnprocessableEntity
		}
		fail(c, status, err)
		return
	}
	c.JSON(http.StatusOK, h.mapper.Status())
}

// @Summary Convert geodetic to working coordinates
// @Tags geo
// @Produce json
// @Param lat query number true "Latitude"
// @Param lon query number true "Longitude"
// @Param alt query number false "Altitude in metres"
// @Success 200 {object} ConvertResponse
// @Failure 400 {object} ErrorResponse
// @Router /geo/convert [get]
func (h *GeoHandler) Convert(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err := errors.Join(err1, err2); err != nil {
		fail(c, http.StatusBadRequest, errors.New("lat and lon are required numbers"))
		return
	}
	alt, _ := strconv.ParseFloat(c.DefaultQuery("alt", "0"), 64)

	p := h.mapper.ToWorking(lat, lon, alt)
	rlat, rlon, ralt := h.mapper.ToGeodetic(p)
	c.JSON(http.StatusOK, ConvertResponse{Working: p, Lat: rlat, Lon: rlon, Alt: ralt})
}

// @Summary Calibration report
// @Description Compares a surveyed baseline against the fitted frame
// @Tags geo
// @Accept json
// @Produce json
// @Param request body CalibrateRequest true "Two surveyed points"
// @Success 200 {object} geo.CalibrationReport
// @Failure 400 {object} ErrorResponse
// @Router /geo/calibrate [post]
func (h *GeoHandler) Calibrate(c *gin.Context) {
	var req CalibrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, h.mapper.Calibrate(req.A, req.B))
}
