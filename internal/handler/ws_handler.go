package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/middleware"
	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/service"
	"github.com/praxislabs/codelab-engine/internal/session"
	ws "github.com/praxislabs/codelab-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
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

// WSHandler streams session events and accepts the high-frequency actions
// (buffer edits, proctor events) over one socket.
type WSHandler struct {
	manager  *service.SessionManager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *service.SessionManager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Upgrades to WebSocket for live ticks, compile notifications and lockout
// pushes; accepts edit and proctor actions from the client.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	ctrl, err := h.manager.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if ctrl.StudentID() != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not session owner"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel, err := h.manager.Watch(sessionID)
	if err != nil {
		ws.WriteError(conn, "session not found")
		return
	}
	defer cancel()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	// Writer pump: one goroutine owns all writes to the socket.
	done := make(chan struct{})
	outbound := make(chan interface{}, 16)
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				if err := ws.WriteTyped(conn, translateEvent(e)); err != nil {
					return
				}
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if err := ws.WriteTyped(conn, msg); err != nil {
					return
				}
			}
		}
	}()
	defer close(outbound)

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		select {
		case <-done:
			return
		default:
		}

		switch msg.Action {
		case ws.ActionEdit:
			h.handleEdit(outbound, ctrl, &msg)
		case ws.ActionProctor:
			h.handleProctor(outbound, ctrl, &msg)
		case ws.ActionPing:
			send(outbound, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

func (h *WSHandler) handleEdit(outbound chan<- interface{}, ctrl *session.Controller, msg *ws.RequestEnvelope) {
	buffers := model.SourceBuffers{HTML: msg.HTML, CSS: msg.CSS, JS: msg.JS}
	if err := ctrl.UpdateBuffers(buffers); err != nil {
		send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
		return
	}

	// Autosave for crash/refresh recovery; best-effort.
	_ = h.manager.CacheBuffers(context.Background(), ctrl.Descriptor().ExerciseID, ctrl.StudentID(), buffers)

	send(outbound, ws.SavedResponse{Event: ws.EventSaved, Status: "saved"})
}

func (h *WSHandler) handleProctor(outbound chan<- interface{}, ctrl *session.Controller, msg *ws.RequestEnvelope) {
	eventType := model.ProctorEventType(msg.Type)
	switch eventType {
	case model.ProctorTabSwitch, model.ProctorFullscreenExit, model.ProctorMinimize, model.ProctorClipboard:
	default:
		send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: "unknown proctor event type"})
		return
	}

	if err := ctrl.ReportProctorEvent(eventType, msg.Details); err != nil {
		send(outbound, ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
		return
	}
	send(outbound, ws.SavedResponse{Event: ws.EventSaved, Status: "recorded"})
}

// send enqueues without blocking the read loop; a full buffer means the
// writer pump died and the connection is going away anyway.
func send(outbound chan<- interface{}, msg interface{}) {
	select {
	case outbound <- msg:
	default:
	}
}

// translateEvent maps a session event to its wire shape.
func translateEvent(e session.Event) interface{} {
	switch e.Type {
	case session.EventTick:
		return ws.TickResponse{Event: ws.EventTick, Remaining: e.Remaining, Display: e.RemainingDisplay}
	case session.EventCompiled:
		return ws.CompiledResponse{Event: ws.EventCompiled}
	case session.EventLocked:
		return ws.LockedResponse{Event: ws.EventLocked, Reason: e.Reason}
	case session.EventCompleted:
		return ws.CompletedResponse{Event: ws.EventCompleted}
	case session.EventRedirect:
		return ws.RedirectResponse{Event: ws.EventRedirect}
	default:
		return ws.ErrorResponse{Event: ws.EventError, Error: "unknown event"}
	}
}
