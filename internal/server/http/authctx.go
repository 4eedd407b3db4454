package httpserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const adminIDKey ctxKey = "cms.adminID"

// WithAdminID stores the authenticated admin ID in context.
func WithAdminID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, adminIDKey, id)
}

// AdminIDFromCtx fetches the admin ID from context.
func AdminIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(adminIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
