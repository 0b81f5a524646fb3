package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/services/capture"
	"airfield-sentinel-go/internal/simclock"
	"airfield-sentinel-go/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClockHandler(t *testing.T) {
	clk := simclock.New(0, 0)
	h := NewClockHandler(clk)
	r := gin.New()
	r.GET("/clock", h.GetClock)
	r.POST("/clock", h.SetClock)

	w := serve(r, http.MethodPost, "/clock", `{"speed":2,"paused":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var st simclock.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2.0, st.Speed)
	assert.True(t, st.Paused)

	w = serve(r, http.MethodPost, "/clock", `{"speed":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPost, "/clock", `{"scrub":1.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodGet, "/clock", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2.0, st.Speed, "rejected request must not change state")
}

func TestActorHandler(t *testing.T) {
	arena := actors.NewArena()
	h := NewActorHandler(arena)
	r := gin.New()
	r.GET("/actors", h.ListActors)
	r.PUT("/actors/:id", h.PutActor)
	r.DELETE("/actors/:id", h.DeleteActor)

	w := serve(r, http.MethodPut, "/actors/AC1", `{"bodyRadiusM":20}`)
	require.Equal(t, http.StatusOK, w.Code)

	handle, ok := arena.Lookup("AC1")
	require.True(t, ok)
	st, ok := arena.Get(handle)
	require.True(t, ok)
	assert.Equal(t, models.ActorKindAircraft, st.Kind)
	assert.Equal(t, 20.0, st.BodyRadiusM)

	w = serve(r, http.MethodGet, "/actors", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.ActorState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "AC1", list[0].ID)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodDelete, "/actors/AC1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/actors/AC1", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPut, "/actors/AC2", `{`).Code)
}

type fakeStore struct {
	rows       []store.Incident
	lastFilter store.Filter
}

func (f *fakeStore) Incidents(_ context.Context, filter store.Filter) ([]store.Incident, error) {
	f.lastFilter = filter
	return f.rows, nil
}

func (f *fakeStore) Incident(_ context.Context, id string) (store.Incident, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Incident{}, store.ErrNotFound
}

type fakeEvents map[string][]models.IncidentEvent

func (f fakeEvents) Read(id string) ([]models.IncidentEvent, error) {
	return f[id], nil
}

func TestIncidentHandler(t *testing.T) {
	fs := &fakeStore{rows: []store.Incident{{ID: "inc-1", Type: models.IncidentTypeWingClearance, Events: 2}}}
	h := NewIncidentHandler(fs, fakeEvents{})
	r := gin.New()
	r.GET("/incidents", h.ListIncidents)
	r.GET("/incidents/:id", h.GetIncident)

	w := serve(r, http.MethodGet, "/incidents?phase=Live&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []store.Incident
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
	assert.Equal(t, store.Filter{Phase: models.PhaseLive, Limit: 5}, fs.lastFilter)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/incidents?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/incidents?type=Bogus", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/incidents/inc-1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/incidents/nope", "").Code)
}

func TestIncidentHandlerWithoutStore(t *testing.T) {
	h := NewIncidentHandler(nil, fakeEvents{})
	r := gin.New()
	r.GET("/incidents", h.ListIncidents)

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/incidents", "").Code)
}

type fakeCapture struct {
	sessions []capture.SessionInfo
}

func (f *fakeCapture) Sessions() []capture.SessionInfo { return f.sessions }

func (f *fakeCapture) ForceStop(id string) error {
	for i, s := range f.sessions {
		if s.IncidentID == id {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			return nil
		}
	}
	return capture.ErrUnknownSession
}

func (f *fakeCapture) ForceStopAll() int {
	n := len(f.sessions)
	f.sessions = nil
	return n
}

func (f *fakeCapture) PoolStats() capture.PoolStats { return capture.PoolStats{Succeeded: 3} }

func TestCaptureHandler(t *testing.T) {
	fc := &fakeCapture{sessions: []capture.SessionInfo{{IncidentID: "a"}, {IncidentID: "b"}, {IncidentID: "c"}}}
	h := NewCaptureHandler(fc)
	r := gin.New()
	r.GET("/captures", h.ListCaptures)
	r.POST("/captures/force-stop", h.ForceStopAll)
	r.POST("/captures/:id/stop", h.StopCapture)

	w := serve(r, http.MethodGet, "/captures", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list CaptureListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Sessions, 3)
	assert.Equal(t, 3, list.Encoder.Succeeded)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/captures/a/stop", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/captures/a/stop", "").Code)

	w = serve(r, http.MethodPost, "/captures/force-stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stopped ForceStopResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(t, 2, stopped.Stopped)
}

func TestHealthHandlerDegraded(t *testing.T) {
	h := NewHealthHandler("w1", "1.0.0", map[string]HealthCheck{
		"loop":  func() bool { return true },
		"store": func() bool { return false },
	})
	r := gin.New()
	r.GET("/health", h.HealthCheck)

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]bool{"loop": true, "store": false}, resp.Checks)
}
