package repository

import (
	"context"
	"therapyroom/internal/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// NotificationRepo writes inbox entries. The core never reads them back.
type NotificationRepo interface {
	Insert(ctx context.Context, n *model.Notification) error
}

type notificationRepo struct {
	collection *mongo.Collection
}

// NewNotificationRepo creates a new notification repository
func NewNotificationRepo(db *mongo.Database) NotificationRepo {
	return &notificationRepo{
		collection: db.Collection("notifications"),
	}
}

func (r *notificationRepo) Insert(ctx context.Context, n *model.Notification) error {
	_, err := r.collection.InsertOne(ctx, n)
	return err
}
