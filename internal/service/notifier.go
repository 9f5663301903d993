package service

import (
	"context"
	"errors"
	"fmt"
	"therapyroom/internal/metrics"
	"therapyroom/internal/model"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NotificationStore persists inbox entries
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) error
}

// NotificationPublisher pushes a stored notification to live inbox clients
type NotificationPublisher interface {
	Publish(ctx context.Context, n *model.Notification) error
}

// Notifier emits user-facing notifications without blocking the caller.
// Delivery failures are logged and counted, never returned.
type Notifier struct {
	outbox *Outbox
	store  NotificationStore
	feed   NotificationPublisher

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	now             func() time.Time
}

// NewNotifier creates a notifier. feed may be nil.
func NewNotifier(outbox *Outbox, store NotificationStore, feed NotificationPublisher) *Notifier {
	return &Notifier{
		outbox:          outbox,
		store:           store,
		feed:            feed,
		maxRetries:      3,
		initialInterval: 200 * time.Millisecond,
		maxInterval:     2 * time.Second,
		now:             time.Now,
	}
}

// Notify queues one notification per user.
func (n *Notifier) Notify(userIDs []string, p model.NotificationPayload) {
	recipients := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	n.outbox.Enqueue("notify", func(ctx context.Context) error {
		return n.deliver(ctx, recipients, p)
	})
}

func (n *Notifier) deliver(ctx context.Context, userIDs []string, p model.NotificationPayload) error {
	var errs []error
	for _, userID := range userIDs {
		entry := &model.Notification{
			ID:        uuid.New().String(),
			UserID:    userID,
			Title:     p.Title,
			Message:   p.Message,
			Type:      p.Type,
			Priority:  p.Priority,
			ActionRef: p.ActionRef,
			CreatedAt: n.now(),
		}
		if err := n.insert(ctx, entry); err != nil {
			metrics.NotificationFailures.Inc()
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
			continue
		}
		if n.feed != nil {
			if err := n.feed.Publish(ctx, entry); err != nil {
				log.Warn().Err(err).Str("user", userID).Msg("notification publish failed")
			}
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) insert(ctx context.Context, entry *model.Notification) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(n.initialInterval),
				backoff.WithMaxInterval(n.maxInterval),
			),
			n.maxRetries,
		),
		ctx,
	)
	return backoff.RetryNotify(func() error {
		return n.store.Insert(ctx, entry)
	}, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("user", entry.UserID).Dur("retry_in", wait).Msg("notification insert failed, retrying")
	})
}

// Notification payloads for session lifecycle events

func sessionCreatedNotice(s *model.Session) model.NotificationPayload {
	return model.NotificationPayload{
		Title:     "Session scheduled",
		Message:   fmt.Sprintf("A session is scheduled for %s.", s.ScheduledAt.UTC().Format(time.RFC1123)),
		Type:      model.NotificationInfo,
		Priority:  model.PriorityNormal,
		ActionRef: s.ID,
	}
}

func sessionStartedNotice(sessionID string) model.NotificationPayload {
	return model.NotificationPayload{
		Title:     "Session started",
		Message:   "Your session has started.",
		Type:      model.NotificationInfo,
		Priority:  model.PriorityHigh,
		ActionRef: sessionID,
	}
}

func sessionCompletedNotice(sessionID string, s model.GameState) model.NotificationPayload {
	msg := fmt.Sprintf("Final score %d to %d.", s.Scores.Therapist, s.Scores.Student)
	if s.EndReason == model.EndEarly {
		msg = "The session was ended early. " + msg
	}
	return model.NotificationPayload{
		Title:     "Session completed",
		Message:   msg,
		Type:      model.NotificationSuccess,
		Priority:  model.PriorityNormal,
		ActionRef: sessionID,
	}
}

func sessionCancelledNotice(sessionID string) model.NotificationPayload {
	return model.NotificationPayload{
		Title:     "Session cancelled",
		Message:   "Your session has been cancelled.",
		Type:      model.NotificationWarning,
		Priority:  model.PriorityHigh,
		ActionRef: sessionID,
	}
}
