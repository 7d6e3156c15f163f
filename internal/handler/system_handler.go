package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	checkTimeout    = 2 * time.Second
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// QueueDepth reports the number of pending items on a worker queue.
type QueueDepth func(ctx context.Context) (int64, error)

// SystemHandler serves liveness checks and streams Go runtime metrics via SSE.
type SystemHandler struct {
	checks    map[string]Check
	queues    map[string]QueueDepth
	startTime time.Time
	log       zerolog.Logger
	interval  time.Duration
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(checks map[string]Check, queues map[string]QueueDepth, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queues:    queues,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
		interval:  metricsInterval,
	}
}

// Health godoc
// GET /health
// Returns 200 when every dependency answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	response.Success(c, status, gin.H{"status": state, "dependencies": deps})
}

type systemMetrics struct {
	Timestamp  int64            `json:"timestamp"`
	Uptime     string           `json:"uptime"`
	Goroutines int              `json:"goroutines"`
	HeapAlloc  uint64           `json:"heap_alloc"`
	HeapSys    uint64           `json:"heap_sys"`
	StackInuse uint64           `json:"stack_inuse"`
	NumGC      uint32           `json:"num_gc"`
	GoVersion  string           `json:"go_version"`
	NumCPU     int              `json:"num_cpu"`
	Queues     map[string]int64 `json:"queues"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	c.SSEvent("metrics", h.collect(c.Request.Context()))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := systemMetrics{
		Timestamp:  time.Now().Unix(),
		Uptime:     formatDuration(time.Since(h.startTime)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		StackInuse: ms.StackInuse,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
		Queues:     make(map[string]int64, len(h.queues)),
	}

	qctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	for name, depth := range h.queues {
		n, err := depth(qctx)
		if err != nil {
			h.log.Debug().Err(err).Str("queue", name).Msg("Queue depth unavailable")
			n = -1
		}
		m.Queues[name] = n
	}

	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
