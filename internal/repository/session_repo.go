package repository

import (
	"context"
	"errors"
	"therapyroom/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SessionRepo handles MongoDB operations for session records
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	Cancel(ctx context.Context, id string) (bool, error)
	MarkSessionStarted(ctx context.Context, id string) error
	MarkSessionCompleted(ctx context.Context, id string, final model.Scores) error
}

type sessionRepo struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewSessionRepo creates a new session repository
func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
		now:        time.Now,
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	session.CreatedAt = r.now()
	if session.Status == "" {
		session.Status = model.SessionScheduled
	}
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil // Session not found
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Cancel moves a scheduled or active session to cancelled. It reports false
// when the session was already closed or does not exist.
func (r *sessionRepo) Cancel(ctx context.Context, id string) (bool, error) {
	now := r.now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []model.SessionStatus{model.SessionScheduled, model.SessionActive}}},
		bson.M{"$set": bson.M{"status": model.SessionCancelled, "endedAt": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// MarkSessionStarted only moves scheduled sessions; a repeated start is a no-op.
func (r *sessionRepo) MarkSessionStarted(ctx context.Context, id string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.SessionScheduled},
		bson.M{"$set": bson.M{"status": model.SessionActive, "startedAt": r.now()}},
	)
	return err
}

func (r *sessionRepo) MarkSessionCompleted(ctx context.Context, id string, final model.Scores) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": []model.SessionStatus{model.SessionScheduled, model.SessionActive}}},
		bson.M{"$set": bson.M{
			"status":     model.SessionCompleted,
			"endedAt":    r.now(),
			"finalScore": final,
		}},
	)
	return err
}
