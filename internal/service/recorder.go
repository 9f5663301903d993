package service

import (
	"context"
	"fmt"
	"therapyroom/internal/model"
)

// SessionLifecycle persists session status changes
type SessionLifecycle interface {
	MarkSessionStarted(ctx context.Context, id string) error
	MarkSessionCompleted(ctx context.Context, id string, final model.Scores) error
}

// Recorder writes session lifecycle changes in the background
type Recorder struct {
	outbox   *Outbox
	sessions SessionLifecycle
}

// NewRecorder creates a recorder that writes through outbox
func NewRecorder(outbox *Outbox, sessions SessionLifecycle) *Recorder {
	return &Recorder{outbox: outbox, sessions: sessions}
}

// Started records that the game of sessionID began.
func (r *Recorder) Started(sessionID string) {
	r.outbox.Enqueue("session-started", func(ctx context.Context) error {
		if err := r.sessions.MarkSessionStarted(ctx, sessionID); err != nil {
			return fmt.Errorf("mark session %s started: %w", sessionID, err)
		}
		return nil
	})
}

// Completed records the final score of sessionID.
func (r *Recorder) Completed(sessionID string, final model.Scores) {
	r.outbox.Enqueue("session-completed", func(ctx context.Context) error {
		if err := r.sessions.MarkSessionCompleted(ctx, sessionID, final); err != nil {
			return fmt.Errorf("mark session %s completed: %w", sessionID, err)
		}
		return nil
	})
}
