package repository

import (
	"context"

	"github.com/and161185/cms-admin/internal/model"
)

// SessionCache maps an admin id to the encrypted copy of its latest session token.
// Backends enforce their own expiry; the service never deletes entries.
type SessionCache interface {
	// Set stores s under key, unconditionally replacing any previous entry.
	Set(ctx context.Context, key string, s model.EncryptedSession) error

	// Get returns the entry for key; ok is false when there is none.
	Get(ctx context.Context, key string) (s model.EncryptedSession, ok bool, err error)
}
