package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/api/handlers"
	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/geo"
	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/simclock"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{WorkerID: "test", Version: "0.0.1", Port: 0, SwaggerHost: "localhost", SwaggerPort: 8000}
	deps := Deps{
		Clock:  simclock.New(0, 0),
		Geo:    geo.NewMapper(geo.NewGeodeticFrame(51.47, -0.45), 1, 0, zerolog.Nop()),
		Actors: actors.NewArena(),
		Checks: map[string]handlers.HealthCheck{"loop": func() bool { return true }},
	}
	return NewServer(cfg, deps, zerolog.Nop())
}

func TestServerRequestID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/clock", http.StatusOK},
		{http.MethodGet, "/geo", http.StatusOK},
		{http.MethodGet, "/actors", http.StatusOK},
		{http.MethodGet, "/incidents", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/info", http.StatusOK},
		{http.MethodOptions, "/clock", http.StatusNoContent},
		{http.MethodGet, "/nope", http.StatusNotFound},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}
