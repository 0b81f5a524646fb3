package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"airfield-sentinel-go/internal/simclock"
)

type ClockHandler struct {
	clock *simclock.Clock
}

func NewClockHandler(clock *simclock.Clock) *ClockHandler {
	return &ClockHandler{clock: clock}
}

// ClockRequest changes playback. Unset fields are left alone.
type ClockRequest struct {
	Speed    *float64 `json:"speed,omitempty" example:"2"`
	Paused   *bool    `json:"paused,omitempty"`
	Scrub    *float64 `json:"scrub,omitempty" example:"0.5"`
	EndScrub bool     `json:"endScrub,omitempty"`
}

// @Summary Get simulation clock
// @Tags clock
// @Produce json
// @Success 200 {object} simclock.State
// @Router /clock [get]
func (h *ClockHandler) GetClock(c *gin.Context) {
	c.JSON(http.StatusOK, h.clock.Snapshot())
}

// @Summary Control playback
// @Description Set speed, pause or resume, and scrub to a fraction of the day
// @Tags clock
// @Accept json
// @Produce json
// @Param request body ClockRequest true "Playback changes"
// @Success 200 {object} simclock.State
// @Failure 400 {object} ErrorResponse
// @Router /clock [post]
func (h *ClockHandler) SetClock(c *gin.Context) {
	var req ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Scrub != nil && (*req.Scrub < 0 || *req.Scrub > 1) {
		fail(c, http.StatusBadRequest, errors.New("scrub must be within [0,1]"))
		return
	}
	if req.Speed != nil {
		if err := h.clock.SetSpeed(*req.Speed); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.Paused != nil {
		if *req.Paused {
			h.clock.Pause()
		} else {
			h.clock.Resume()
		}
	}
	if req.Scrub != nil {
		h.clock.ScrubTo(*req.Scrub)
	}
	if req.EndScrub {
		h.clock.EndScrub()
	}
	c.JSON(http.StatusOK, h.clock.Snapshot())
}
