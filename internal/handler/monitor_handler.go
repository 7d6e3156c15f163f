package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorSnapshotter counts an exam's sessions by status.
type MonitorSnapshotter interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error)
}

// EventStreamer yields raw session event payloads for one exam.
type EventStreamer interface {
	Stream(ctx context.Context, examID uuid.UUID) (<-chan string, func() error, error)
}

// MonitorHandler streams live exam activity to admins over SSE.
type MonitorHandler struct {
	monitor   MonitorSnapshotter
	events    EventStreamer
	log       zerolog.Logger
	refresh   time.Duration
	keepAlive time.Duration
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitor MonitorSnapshotter, events EventStreamer, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor:   monitor,
		events:    events,
		log:       log.With().Str("component", "monitor_handler").Logger(),
		refresh:   refreshInterval,
		keepAlive: keepAliveInterval,
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Sends a snapshot of session counts, then forwards session events as they happen.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	snapshot, err := h.monitor.Snapshot(reqCtx, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	events, stop, err := h.events.Stream(reqCtx, examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to subscribe to monitor channel")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer func() { _ = stop() }()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refresh)
	defer refreshTicker.Stop()

	// Counts only change when events arrive, so refreshes are skipped while idle.
	dirty := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case payload, open := <-events:
			if !open {
				h.log.Debug().Str("exam_id", examID.String()).Msg("Monitor channel closed")
				return
			}
			c.SSEvent("session", json.RawMessage(payload))
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			h.sendRefresh(c, reqCtx, examID)
			dirty = false

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// sendRefresh re-counts sessions so the dashboard corrects any missed events.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snapshot, err := h.monitor.Snapshot(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh monitor snapshot")
		return
	}

	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()
}
