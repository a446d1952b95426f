package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/praxislabs/codelab-engine/internal/compiler"
	"github.com/praxislabs/codelab-engine/internal/middleware"
	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/pipeline"
	"github.com/praxislabs/codelab-engine/internal/response"
	"github.com/praxislabs/codelab-engine/internal/service"
	"github.com/praxislabs/codelab-engine/internal/session"
	"github.com/praxislabs/codelab-engine/internal/validator"
)

// SessionHandler handles the student-facing session lifecycle endpoints.
type SessionHandler struct {
	manager *service.SessionManager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *service.SessionManager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// OpenSession godoc
// POST /api/v1/sessions
// Opens (or resumes) the session for this student and exercise. Idempotent:
// re-posting the same exercise returns the existing live session.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.manager.Open(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Restore autosaved buffers on resume so a refresh never loses work.
	if vm := ctrl.Snapshot(); vm.State == model.StateInProgress && vm.Buffers == (model.SourceBuffers{}) {
		if cached, cacheErr := h.manager.CachedBuffers(c.Request.Context(), req.ExerciseID, claims.UserID); cacheErr == nil && cached != nil {
			_ = ctrl.UpdateBuffers(*cached)
		}
	}

	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Returns the current session view model.
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// BeginSession godoc
// POST /api/v1/sessions/:session_id/begin
// Moves an assessment session to the consent screen.
func (h *SessionHandler) BeginSession(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := ctrl.Begin(); err != nil {
		h.failTransition(c, ctrl, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// Consent godoc
// POST /api/v1/sessions/:session_id/consent
// Records the student's acknowledgement and starts the attempt.
func (h *SessionHandler) Consent(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := ctrl.Consent(); err != nil {
		h.failTransition(c, ctrl, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// UpdateBuffers godoc
// PUT /api/v1/sessions/:session_id/buffers
// Replaces the source buffers and schedules a recompile.
func (h *SessionHandler) UpdateBuffers(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.UpdateBuffersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	buffers := model.SourceBuffers{HTML: req.HTML, CSS: req.CSS, JS: req.JS}
	if err := ctrl.UpdateBuffers(buffers); err != nil {
		h.failTransition(c, ctrl, err)
		return
	}

	// Autosave for crash/refresh recovery; best-effort.
	_ = h.manager.CacheBuffers(c.Request.Context(), ctrl.Descriptor().ExerciseID, ctrl.StudentID(), buffers)

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Preview godoc
// GET /api/v1/sessions/:session_id/preview
// Serves the compiled preview document. The response carries a CSP sandbox
// so student scripts run without same-origin or top-navigation powers.
func (h *SessionHandler) Preview(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	for k, v := range compiler.SandboxHeaders() {
		c.Header(k, v)
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(ctrl.CompiledDocument()))
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Submits the current question's buffers through the pipeline.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	result, err := ctrl.Submit(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrAttemptCapReached):
			response.Fail(c, http.StatusForbidden, response.ErrAttemptLimitReached)
		case errors.Is(err, pipeline.ErrSubmissionInFlight):
			response.Fail(c, http.StatusConflict, response.ErrSubmissionInFlight)
		case errors.Is(err, session.ErrSessionTerminal), errors.Is(err, session.ErrSessionClosed):
			h.failTransition(c, ctrl, err)
		default:
			// Transport failure toward the course backend; retryable.
			response.Fail(c, http.StatusBadGateway, response.ErrSubmissionUnavailable)
		}
		return
	}

	if result.Outcome == pipeline.OutcomeAttemptLimit {
		response.Fail(c, http.StatusForbidden, response.ErrAttemptLimitReached)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"result":  result,
		"session": ctrl.Snapshot(),
	})
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
// Moves the cursor to another question.
func (h *SessionHandler) Navigate(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.Navigate(req.Index); err != nil {
		if errors.Is(err, session.ErrIndexOutOfRange) {
			response.Fail(c, http.StatusBadRequest, response.ErrQuestionIndexInvalid)
			return
		}
		h.failTransition(c, ctrl, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// ReportProctorEvent godoc
// POST /api/v1/sessions/:session_id/proctor
// Records a proctoring event. May terminate the session when the
// tab-switch budget is exhausted.
func (h *SessionHandler) ReportProctorEvent(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.ProctorEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.ReportProctorEvent(req.Type, req.Details); err != nil {
		h.failTransition(c, ctrl, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": ctrl.Snapshot()})
}

// CloseSession godoc
// DELETE /api/v1/sessions/:session_id
// Tears down the live session. The durable trail persists.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	ctrl, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := h.manager.Close(c.Request.Context(), ctrl.ID()); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "closed"})
}

// resolve parses the session ID, loads the live controller and enforces
// ownership. Writes the error response itself when it returns false.
func (h *SessionHandler) resolve(c *gin.Context) (*session.Controller, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.manager.Get(id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}

	if ctrl.StudentID() != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		return nil, false
	}

	return ctrl, true
}

// failTransition maps state-machine errors to response codes.
func (h *SessionHandler) failTransition(c *gin.Context, ctrl *session.Controller, err error) {
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		response.Fail(c, http.StatusGone, response.ErrSessionClosed)
	case errors.Is(err, session.ErrSessionTerminal):
		if ctrl.Snapshot().State == model.StateCompleted {
			response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
		} else {
			response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
		}
	case errors.Is(err, session.ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
