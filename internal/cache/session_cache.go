package cache

import (
	"context"
	"encoding/json"
	"errors"
	"therapyroom/internal/model"
	"therapyroom/internal/repository"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionTTL = 2 * time.Minute

// SessionCache keeps recently read session records in Redis
type SessionCache interface {
	Set(ctx context.Context, session *model.Session) error
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

type sessionCache struct {
	client *redis.Client
}

func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (c *sessionCache) Set(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.ID), data, sessionTTL).Err()
}

func (c *sessionCache) Get(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *sessionCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, sessionKey(id)).Err()
}

// cachedSessionRepo reads through the cache and drops the entry on every
// status change, so a cancelled session is never served from the cache.
type cachedSessionRepo struct {
	repository.SessionRepo
	cache SessionCache
}

// NewCachedSessionRepo wraps repo with a read-through session cache.
// Cache errors fall back to the repository.
func NewCachedSessionRepo(repo repository.SessionRepo, cache SessionCache) repository.SessionRepo {
	return &cachedSessionRepo{SessionRepo: repo, cache: cache}
}

func (r *cachedSessionRepo) GetSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := r.cache.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("session", id).Msg("session cache read failed")
	}
	if session != nil {
		return session, nil
	}

	session, err = r.SessionRepo.GetSession(ctx, id)
	if err != nil || session == nil {
		return session, err
	}
	if err := r.cache.Set(ctx, session); err != nil {
		log.Warn().Err(err).Str("session", id).Msg("session cache write failed")
	}
	return session, nil
}

func (r *cachedSessionRepo) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := r.SessionRepo.Cancel(ctx, id)
	r.invalidate(ctx, id)
	return ok, err
}

func (r *cachedSessionRepo) MarkSessionStarted(ctx context.Context, id string) error {
	err := r.SessionRepo.MarkSessionStarted(ctx, id)
	r.invalidate(ctx, id)
	return err
}

func (r *cachedSessionRepo) MarkSessionCompleted(ctx context.Context, id string, final model.Scores) error {
	err := r.SessionRepo.MarkSessionCompleted(ctx, id, final)
	r.invalidate(ctx, id)
	return err
}

func (r *cachedSessionRepo) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("session", id).Msg("session cache invalidation failed")
	}
}
