// Package rediscache implements the session cache on Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/cms-admin/internal/model"
)

const keyPrefix = "admin:session:"

// Connect initializes a Redis client from URL or host:port input and checks it answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// SessionCache stores encrypted sessions as JSON under "admin:session:<id>".
// A positive ttl is applied on every Set; zero keeps entries until overwritten.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a Redis-backed session cache.
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

// Set overwrites the entry for key.
func (c *SessionCache) Set(ctx context.Context, key string, s model.EncryptedSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err()
}

// Get loads the entry for key; a missing key is not an error.
func (c *SessionCache) Get(ctx context.Context, key string) (model.EncryptedSession, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.EncryptedSession{}, false, nil
		}
		return model.EncryptedSession{}, false, err
	}
	var out model.EncryptedSession
	if err := json.Unmarshal(raw, &out); err != nil {
		return model.EncryptedSession{}, false, fmt.Errorf("decode cached session: %w", err)
	}
	return out, true, nil
}
