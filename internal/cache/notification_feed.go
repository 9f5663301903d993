package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"therapyroom/internal/model"

	"github.com/redis/go-redis/v9"
)

// NotificationFeed publishes new notifications for live inbox clients
type NotificationFeed interface {
	Publish(ctx context.Context, n *model.Notification) error
}

type notificationFeed struct {
	client *redis.Client
}

// NewNotificationFeed creates a Redis pub/sub notification feed
func NewNotificationFeed(client *redis.Client) NotificationFeed {
	return &notificationFeed{client: client}
}

// Channel returns the pub/sub channel of a user's inbox.
func Channel(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}

func (f *notificationFeed) Publish(ctx context.Context, n *model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, Channel(n.UserID), data).Err()
}
