package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"airfield-sentinel-go/internal/logging"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/router"
	"airfield-sentinel-go/internal/store"
)

type IncidentStore interface {
	Incidents(ctx context.Context, f store.Filter) ([]store.Incident, error)
	Incident(ctx context.Context, id string) (store.Incident, error)
}

type EventReader interface {
	Read(incidentID string) ([]models.IncidentEvent, error)
}

type IncidentHandler struct {
	store  IncidentStore
	events EventReader
}

// NewIncidentHandler accepts a nil store; listing then answers 503 while
// event logs stay readable.
func NewIncidentHandler(s IncidentStore, events EventReader) *IncidentHandler {
	return &IncidentHandler{store: s, events: events}
}

// @Summary List incidents
// @Description Most recently seen first
// @Tags incidents
// @Produce json
// @Param phase query string false "Predicted, Live or Cleared"
// @Param type query string false "Incident type"
// @Param limit query int false "Max rows (default 500)"
// @Success 200 {array} store.Incident
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /incidents [get]
func (h *IncidentHandler) ListIncidents(c *gin.Context) {
	if h.store == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("incident index disabled"))
		return
	}
	f := store.Filter{
		Phase: models.IncidentPhase(c.Query("phase")),
		Type:  models.IncidentType(c.Query("type")),
	}
	if f.Type != "" && !f.Type.IsValid() {
		fail(c, http.StatusBadRequest, errors.New("unknown incident type"))
		return
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		f.Limit = n
	}

	list, err := h.store.Incidents(c.Request.Context(), f)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list incidents")
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []store.Incident{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get an incident
// @Tags incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} store.Incident
// @Failure 404 {object} ErrorResponse
// @Router /incidents/{id} [get]
func (h *IncidentHandler) GetIncident(c *gin.Context) {
	if h.store == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("incident index disabled"))
		return
	}
	inc, err := h.store.Incident(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logging.Error(c).Err(err).Str("incident_id", c.Param("id")).Msg("Failed to load incident")
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// @Summary Get an incident's event log
// @Description Events in the order they were appended
// @Tags incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {array} models.IncidentEvent
// @Failure 404 {object} ErrorResponse
// @Router /incidents/{id}/events [get]
func (h *IncidentHandler) GetIncidentEvents(c *gin.Context) {
	events, err := h.events.Read(c.Param("id"))
	if errors.Is(err, router.ErrNoEvents) {
		fail(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		logging.Error(c).Err(err).Str("incident_id", c.Param("id")).Msg("Failed to read event log")
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
