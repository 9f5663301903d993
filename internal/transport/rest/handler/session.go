package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"therapyroom/internal/model"
	"therapyroom/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
)

// SessionService is the session scheduling slice
type SessionService interface {
	Create(ctx context.Context, caller model.Identity, req model.CreateSessionRequest) (*model.Session, error)
	Get(ctx context.Context, caller model.Identity, sessionID string) (*model.Session, error)
	Cancel(ctx context.Context, caller model.Identity, sessionID string) (*model.Session, error)
}

// SessionHandler handles session endpoints
type SessionHandler struct {
	sessions SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create handles POST /v1/sessions
//
//	@Summary	Schedule a session
//	@Tags		sessions
//	@Accept		json
//	@Produce	json
//	@Param		body	body		model.CreateSessionRequest	true	"Session to schedule"
//	@Success	201		{object}	model.Session
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/v1/sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.Create(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Get handles GET /v1/sessions/{id}
//
//	@Summary	Get a session
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	model.Session
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/v1/sessions/{id} [get]
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session, err := h.sessions.Get(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Cancel handles POST /v1/sessions/{id}/cancel
//
//	@Summary	Cancel a session
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	model.Session
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	409	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/v1/sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session, err := h.sessions.Cancel(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
