package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// StatsSource returns a JSON-encodable snapshot.
type StatsSource func() any

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID string
	started  time.Time
	sources  map[string]StatsSource
}

func NewSystemHandler(workerID string, sources map[string]StatsSource) *SystemHandler {
	return &SystemHandler{
		WorkerID: workerID,
		started:  time.Now(),
		sources:  sources,
	}
}

// @Summary Get system stats
// @Description Runtime figures plus per-service counters
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	services := gin.H{}
	for name, src := range h.sources {
		services[name] = src()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"worker_id":  h.WorkerID,
			"uptime_sec": int64(time.Since(h.started).Seconds()),
			"memory_mb":  m.Alloc / 1024 / 1024,
			"cpu_cores":  runtime.NumCPU(),
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
		"services":  services,
		"timestamp": time.Now().Unix(),
	})
}
