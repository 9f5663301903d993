package service

import (
	"context"
	"fmt"
	"strings"
	"therapyroom/internal/model"
	"therapyroom/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoomCloser ends the live game of a session
type RoomCloser interface {
	CloseRoom(ctx context.Context, sessionID string, reason model.EndReason) error
}

// SessionService handles the scheduling slice of session records
type SessionService struct {
	sessions repository.SessionRepo
	notifier NotificationEmitter
	rooms    RoomCloser
	now      func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(sessions repository.SessionRepo, notifier NotificationEmitter, rooms RoomCloser) *SessionService {
	return &SessionService{
		sessions: sessions,
		notifier: notifier,
		rooms:    rooms,
		now:      time.Now,
	}
}

// Create schedules a session owned by the calling therapist.
func (s *SessionService) Create(ctx context.Context, caller model.Identity, req model.CreateSessionRequest) (*model.Session, error) {
	if caller.Role != model.RoleTherapist {
		return nil, ErrNotAuthority
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: studentId is required", ErrInvalidRequest)
	}
	if studentID == caller.UserID {
		return nil, fmt.Errorf("%w: therapist and student must differ", ErrInvalidRequest)
	}
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}

	session := &model.Session{
		ID:          uuid.New().String(),
		TherapistID: caller.UserID,
		StudentID:   studentID,
		Status:      model.SessionScheduled,
		ScheduledAt: scheduledAt.UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.notifier.Notify(session.Participants(), sessionCreatedNotice(session))
	log.Info().Str("session", session.ID).Str("user", caller.UserID).Msg("session scheduled")
	return session, nil
}

// Get returns a session visible to one of its participants.
func (s *SessionService) Get(ctx context.Context, caller model.Identity, sessionID string) (*model.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.OwnerFor(caller.Role) != caller.UserID {
		return nil, ErrForbidden
	}
	return session, nil
}

// Cancel closes a scheduled or active session and ends its live game.
func (s *SessionService) Cancel(ctx context.Context, caller model.Identity, sessionID string) (*model.Session, error) {
	session, err := s.Get(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	if caller.Role != model.RoleTherapist {
		return nil, ErrNotAuthority
	}

	ok, err := s.sessions.Cancel(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel session: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyClosed
	}

	if err := s.rooms.CloseRoom(ctx, sessionID, model.EndCancelled); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("close room after cancel")
	}
	s.notifier.Notify(session.Participants(), sessionCancelledNotice(sessionID))

	now := s.now()
	session.Status = model.SessionCancelled
	session.EndedAt = &now
	log.Info().Str("session", sessionID).Msg("session cancelled")
	return session, nil
}
