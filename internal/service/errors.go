package service

import (
	"errors"
	"fmt"
	"therapyroom/internal/game"
	"therapyroom/internal/model"
	"therapyroom/internal/room"
)

var (
	// Connection-level authentication failures
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMissingToken    = fmt.Errorf("%w: missing token", ErrUnauthenticated)
	ErrInvalidToken    = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrExpiredToken    = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrRevokedToken    = fmt.Errorf("%w: token revoked", ErrUnauthenticated)

	// Authorization failures
	ErrForbidden     = errors.New("forbidden")
	ErrNotAuthority  = fmt.Errorf("%w: only the therapist can do that", ErrForbidden)
	ErrSessionClosed = fmt.Errorf("%w: session is closed", ErrForbidden)

	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyClosed   = errors.New("session already closed")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrStopped         = errors.New("coordinator stopped")
)

// ErrorCode maps an error to the code sent in an error event.
func ErrorCode(err error) model.ErrorCode {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return model.CodeUnauthenticated
	case errors.Is(err, game.ErrNotYourTurn):
		return model.CodeNotYourTurn
	case errors.Is(err, ErrForbidden):
		return model.CodeForbidden
	case errors.Is(err, game.ErrAlreadyEnded):
		return model.CodeAlreadyEnded
	case errors.Is(err, game.ErrInvalidState):
		return model.CodeInvalidTransition
	case errors.Is(err, model.ErrMalformedEvent):
		return model.CodeMalformedEvent
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, room.ErrNotInRoom),
		errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrUnknownConnection):
		return model.CodeNotFound
	}
	return model.CodeInternal
}

// errorPayload builds the client-facing refusal. Internal details are not sent.
func errorPayload(err error) model.ErrorPayload {
	code := ErrorCode(err)
	msg := err.Error()
	if code == model.CodeInternal {
		msg = "internal error"
	}
	return model.ErrorPayload{Code: code, Message: msg}
}
