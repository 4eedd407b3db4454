// Package memory provides in-process backends for single-node and dev runs.
package memory

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/and161185/cms-admin/internal/model"
)

// SessionCache keeps encrypted sessions in a ttlcache. Entries expire ttl after
// their last write; reads do not extend them.
type SessionCache struct {
	c *ttlcache.Cache[string, model.EncryptedSession]
}

// NewSessionCache returns an empty cache. A zero ttl disables expiry.
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{c: ttlcache.New(
		ttlcache.WithTTL[string, model.EncryptedSession](ttl),
		ttlcache.WithDisableTouchOnHit[string, model.EncryptedSession](),
	)}
}

// Set overwrites the entry for key and drops entries that have expired.
func (s *SessionCache) Set(_ context.Context, key string, v model.EncryptedSession) error {
	s.c.DeleteExpired()
	s.c.Set(key, v, ttlcache.DefaultTTL)
	return nil
}

// Get returns the live entry for key, if any.
func (s *SessionCache) Get(_ context.Context, key string) (model.EncryptedSession, bool, error) {
	item := s.c.Get(key)
	if item == nil || item.IsExpired() {
		return model.EncryptedSession{}, false, nil
	}
	return item.Value(), true, nil
}
