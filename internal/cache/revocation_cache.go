package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationCache tracks revoked token ids (jti) in Redis
type RevocationCache interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

type revocationCache struct {
	client *redis.Client
}

// NewRevocationCache creates a new revocation cache
func NewRevocationCache(client *redis.Client) RevocationCache {
	return &revocationCache{client: client}
}

func (c *revocationCache) key(tokenID string) string {
	return fmt.Sprintf("jwt:revoked:%s", tokenID)
}

func (c *revocationCache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revoke keeps the entry until the token would have expired anyway.
func (c *revocationCache) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(tokenID), 1, ttl).Err()
}
