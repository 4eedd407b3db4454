// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/cms-admin/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AdminRepository provides access to admin identities.
// Lookups return errs.ErrNotFound when nothing matches; writes that break
// email uniqueness return errs.ErrAlreadyExists.
type AdminRepository interface {
	// Create inserts a new admin.
	Create(ctx context.Context, a *model.Admin) error
	// GetByID loads an admin by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Admin, error)
	// GetByEmail loads an admin by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	// GetByVerificationCodeHash loads the admin whose active reset code hashes to codeHash.
	GetByVerificationCodeHash(ctx context.Context, codeHash string) (*model.Admin, error)
	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	// UpdateVerificationCode replaces the active reset code hash.
	UpdateVerificationCode(ctx context.Context, id uuid.UUID, codeHash string) error
	// UpdateProfile applies a partial profile update and returns the stored record.
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Admin, error)
}
