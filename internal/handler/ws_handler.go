package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams autosave and submit over a WebSocket.
type WSHandler struct {
	sessions SessionManager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionManager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/exams/:exam_id/stream?token=...
// Accepts autosave and submit actions for the caller's session. The stream closes after submit.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	examID, ok := paramID(c, "exam_id")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", caller.ID.String()).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()
	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var msg ws.RequestPayload
		if err := json.Unmarshal(data, &msg); err != nil {
			wsLog.Debug().Err(err).Msg("Malformed stream payload")
			_ = ws.WriteError(conn, string(response.ErrValidation), "malformed payload: "+err.Error())
			continue
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, examID, caller.ID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, examID, caller.ID, &msg) {
				_ = ws.CloseNormal(conn, "submitted")
				return
			}
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, examID, studentID uuid.UUID, msg *ws.RequestPayload) {
	req := model.AutosaveRequest{Answers: msg.Answers, RemainingSeconds: msg.RemainingSeconds}
	if err := h.sessions.Autosave(ctx, examID, studentID, req); err != nil {
		h.writeError(conn, wsLog, err)
		return
	}
	_ = ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved})
}

// handleSubmit reports whether the session was closed.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, examID, studentID uuid.UUID, msg *ws.RequestPayload) bool {
	result, err := h.sessions.Submit(ctx, examID, studentID, model.SubmitRequest{Answers: msg.Answers})
	if err != nil {
		h.writeError(conn, wsLog, err)
		return false
	}

	wsLog.Info().Msg("Exam submitted over stream")
	_ = ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, Result: result})
	return true
}

func (h *WSHandler) writeError(conn *websocket.Conn, wsLog zerolog.Logger, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		_ = ws.WriteError(conn, string(response.ErrValidation), ve.Error())
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("Stream action failed")
	}
	_ = ws.WriteError(conn, string(code), response.GetMessage(code))
}
