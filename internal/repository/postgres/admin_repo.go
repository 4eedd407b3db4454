package postgres

import (
	"context"
	"errors"

	"github.com/and161185/cms-admin/internal/errs"
	"github.com/and161185/cms-admin/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AdminRepo implements AdminRepository using PostgreSQL.
type AdminRepo struct{ db *DB }

// NewAdminRepo constructs an admin repository.
func NewAdminRepo(db *DB) *AdminRepo { return &AdminRepo{db: db} }

const adminColumns = `id, email, password_hash, verification_code_hash, first_name, last_name, phone_number, created_at, updated_at`

// Create inserts a new admin row.
func (r *AdminRepo) Create(ctx context.Context, a *model.Admin) error {
	const q = `
INSERT INTO admins (id, email, password_hash, verification_code_hash, first_name, last_name, phone_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Email, a.PasswordHash, a.VerificationCodeHash, a.FirstName, a.LastName, a.PhoneNumber)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an admin by ID.
func (r *AdminRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Admin, error) {
	const q = `SELECT ` + adminColumns + ` FROM admins WHERE id=$1`
	return scanAdmin(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects an admin by email.
func (r *AdminRepo) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	const q = `SELECT ` + adminColumns + ` FROM admins WHERE email=$1`
	return scanAdmin(r.db.Pool.QueryRow(ctx, q, email))
}

// GetByVerificationCodeHash selects the admin holding the given reset code hash.
func (r *AdminRepo) GetByVerificationCodeHash(ctx context.Context, codeHash string) (*model.Admin, error) {
	if codeHash == "" {
		return nil, errs.ErrNotFound
	}
	const q = `SELECT ` + adminColumns + ` FROM admins WHERE verification_code_hash=$1`
	return scanAdmin(r.db.Pool.QueryRow(ctx, q, codeHash))
}

// UpdatePassword sets a new password hash.
func (r *AdminRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const q = `UPDATE admins SET password_hash=$2, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id, passwordHash)
}

// UpdateVerificationCode overwrites the active reset code hash.
func (r *AdminRepo) UpdateVerificationCode(ctx context.Context, id uuid.UUID, codeHash string) error {
	const q = `UPDATE admins SET verification_code_hash=$2, updated_at=now() WHERE id=$1`
	return r.execOne(ctx, q, id, codeHash)
}

// UpdateProfile changes only the non-nil fields of upd.
func (r *AdminRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Admin, error) {
	const q = `
UPDATE admins SET
  first_name = COALESCE($2, first_name),
  last_name = COALESCE($3, last_name),
  email = COALESCE($4, email),
  phone_number = COALESCE($5, phone_number),
  updated_at = now()
WHERE id = $1
RETURNING ` + adminColumns
	a, err := scanAdmin(r.db.Pool.QueryRow(ctx, q, id, upd.FirstName, upd.LastName, upd.Email, upd.PhoneNumber))
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	return a, err
}

func (r *AdminRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanAdmin(row pgx.Row) (*model.Admin, error) {
	var a model.Admin
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.VerificationCodeHash,
		&a.FirstName, &a.LastName, &a.PhoneNumber, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
