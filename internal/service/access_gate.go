package service

import (
	"context"
	"fmt"
	"therapyroom/internal/model"
)

// SessionReader loads session records. A missing session is (nil, nil).
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// AccessGate decides whether a user may act in a session
type AccessGate struct {
	sessions SessionReader
}

// NewAccessGate creates a new access gate
func NewAccessGate(sessions SessionReader) *AccessGate {
	return &AccessGate{sessions: sessions}
}

// Authorize checks that userID owns role in sessionID. The session is read
// on every call so cancellations apply to the next join.
func (g *AccessGate) Authorize(ctx context.Context, sessionID, userID string, role model.Role) (*model.Session, error) {
	session, err := g.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !role.Valid() || session.OwnerFor(role) != userID {
		return nil, ErrForbidden
	}
	if session.Status == model.SessionCancelled {
		return nil, ErrSessionClosed
	}
	return session, nil
}

// AuthorizeStart is Authorize for starting a game. A completed session can
// still be joined for review but not played again.
func (g *AccessGate) AuthorizeStart(ctx context.Context, sessionID, userID string, role model.Role) (*model.Session, error) {
	session, err := g.Authorize(ctx, sessionID, userID, role)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionCompleted {
		return nil, ErrSessionClosed
	}
	return session, nil
}
