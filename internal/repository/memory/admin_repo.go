package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cms-admin/internal/errs"
	"github.com/and161185/cms-admin/internal/model"
)

// AdminRepo is an in-process AdminRepository for dev runs without Postgres.
type AdminRepo struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*model.Admin
}

// NewAdminRepo returns an empty store.
func NewAdminRepo() *AdminRepo {
	return &AdminRepo{byID: make(map[uuid.UUID]*model.Admin)}
}

func (r *AdminRepo) Create(_ context.Context, a *model.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(a.Email, uuid.Nil) {
		return errs.ErrAlreadyExists
	}
	cpy := *a
	now := time.Now()
	cpy.CreatedAt, cpy.UpdatedAt = now, now
	r.byID[a.ID] = &cpy
	return nil
}

func (r *AdminRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Admin, error) {
	return r.find(func(a *model.Admin) bool { return a.ID == id })
}

func (r *AdminRepo) GetByEmail(_ context.Context, email string) (*model.Admin, error) {
	return r.find(func(a *model.Admin) bool { return a.Email == email })
}

func (r *AdminRepo) GetByVerificationCodeHash(_ context.Context, codeHash string) (*model.Admin, error) {
	if codeHash == "" {
		return nil, errs.ErrNotFound
	}
	return r.find(func(a *model.Admin) bool { return a.VerificationCodeHash == codeHash })
}

func (r *AdminRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(id, func(a *model.Admin) { a.PasswordHash = passwordHash })
}

func (r *AdminRepo) UpdateVerificationCode(_ context.Context, id uuid.UUID, codeHash string) error {
	return r.update(id, func(a *model.Admin) { a.VerificationCodeHash = codeHash })
}

func (r *AdminRepo) UpdateProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if upd.Email != nil && r.emailTaken(*upd.Email, id) {
		return nil, errs.ErrAlreadyExists
	}
	if upd.FirstName != nil {
		a.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		a.LastName = *upd.LastName
	}
	if upd.Email != nil {
		a.Email = *upd.Email
	}
	if upd.PhoneNumber != nil {
		a.PhoneNumber = *upd.PhoneNumber
	}
	a.UpdatedAt = time.Now()
	cpy := *a
	return &cpy, nil
}

func (r *AdminRepo) find(match func(*model.Admin) bool) (*model.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if match(a) {
			cpy := *a
			return &cpy, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *AdminRepo) update(id uuid.UUID, fn func(*model.Admin)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

// emailTaken must be called with mu held.
func (r *AdminRepo) emailTaken(email string, except uuid.UUID) bool {
	for id, a := range r.byID {
		if a.Email == email && id != except {
			return true
		}
	}
	return false
}
