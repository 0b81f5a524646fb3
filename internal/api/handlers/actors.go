package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/actors"
)

type ActorHandler struct {
	arena *actors.Arena
}

func NewActorHandler(arena *actors.Arena) *ActorHandler {
	return &ActorHandler{arena: arena}
}

// @Summary List actors
// @Tags actors
// @Produce json
// @Success 200 {array} models.ActorState
// @Router /actors [get]
func (h *ActorHandler) ListActors(c *gin.Context) {
	snap := h.arena.Snapshot()
	out := make([]models.ActorState, len(snap))
	for i, e := range snap {
		out[i] = e.State
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Upsert an actor
// @Tags actors
// @Accept json
// @Produce json
// @Param id path string true "Actor ID"
// @Param request body models.ActorState true "Actor state; id is taken from the path"
// @Success 200 {object} models.ActorState
// @Failure 400 {object} ErrorResponse
// @Router /actors/{id} [put]
func (h *ActorHandler) PutActor(c *gin.Context) {
	var st models.ActorState
	if err := c.ShouldBindJSON(&st); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	st.ID = c.Param("id")
	if st.Kind == "" {
		st.Kind = models.ActorKindAircraft
	}
	if _, err := h.arena.Upsert(st); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary Despawn an actor
// @Tags actors
// @Produce json
// @Param id path string true "Actor ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /actors/{id} [delete]
func (h *ActorHandler) DeleteActor(c *gin.Context) {
	if err := h.arena.Despawn(c.Param("id")); err != nil {
		if errors.Is(err, actors.ErrUnknownActor) {
			fail(c, http.StatusNotFound, err)
			return
		}
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "actor despawned"})
}
