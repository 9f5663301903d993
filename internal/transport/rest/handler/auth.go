package handler

import (
	"context"
	"net/http"
	"therapyroom/internal/model"
	"therapyroom/internal/transport/rest/middleware"
)

// TokenRevoker invalidates the caller's token
type TokenRevoker interface {
	Revoke(ctx context.Context, id model.Identity) error
}

// AuthHandler handles token endpoints
type AuthHandler struct {
	tokens TokenRevoker
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tokens TokenRevoker) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// Logout handles POST /v1/auth/logout
//
//	@Summary	Revoke the presented token
//	@Tags		auth
//	@Success	204
//	@Failure	400	{object}	ErrorResponse
//	@Failure	401	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/v1/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.tokens.Revoke(r.Context(), caller); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
