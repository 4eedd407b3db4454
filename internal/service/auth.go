// Package service contains the admin authentication service.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/cms-admin/internal/crypto"
	"github.com/and161185/cms-admin/internal/errs"
	"github.com/and161185/cms-admin/internal/metrics"
	"github.com/and161185/cms-admin/internal/model"
	"github.com/and161185/cms-admin/internal/repository"
)

// tokenLeeway tolerates clock skew when verifying presented tokens.
const tokenLeeway = 30 * time.Second

// PasswordHasher hashes and verifies admin passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// SessionCodec encrypts issued tokens for the session cache.
type SessionCodec interface {
	Encode(plaintext string) (model.EncryptedSession, error)
	Decode(s model.EncryptedSession) (string, error)
}

// AdminAuthService defines login, signup, password reset and session checks for admins.
type AdminAuthService interface {
	// Signup registers a new admin and issues its first session token.
	Signup(ctx context.Context, in SignupInput) (model.Tokens, error)
	// Login verifies credentials and issues a session token, superseding the previous one.
	Login(ctx context.Context, email, password string) (model.Tokens, error)
	// RequestPasswordReset rotates the reset code and returns it for out-of-band delivery.
	RequestPasswordReset(ctx context.Context, email string) (code string, err error)
	// VerifyResetCode checks a reset code without consuming it.
	VerifyResetCode(ctx context.Context, code string) error
	// ResetPassword sets a new password and invalidates the code used.
	ResetPassword(ctx context.Context, code, newPassword string) error
	// Profile returns the admin record.
	Profile(ctx context.Context, id uuid.UUID) (*model.Admin, error)
	// UpdateProfile applies a partial profile change.
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Admin, error)
	// Authenticate resolves a presented token to its admin id against the session cache.
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

// SignupInput carries the signup form.
type SignupInput struct {
	Email    string
	Password string
	model.Profile
}

type AdminAuthServiceImpl struct {
	admins   repository.AdminRepository
	sessions repository.SessionCache
	codec    SessionCodec
	hasher   PasswordHasher
	signKey  []byte
	tokenTTL time.Duration

	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customizes AdminAuthServiceImpl.
type Option func(*AdminAuthServiceImpl)

// WithLogger sets the logger used for downstream failures.
func WithLogger(l *zap.Logger) Option { return func(s *AdminAuthServiceImpl) { s.log = l } }

// WithMetrics enables per-operation counters.
func WithMetrics(m *metrics.Metrics) Option { return func(s *AdminAuthServiceImpl) { s.metrics = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *AdminAuthServiceImpl) { s.now = now } }

// NewAdminAuthService constructs AdminAuthService with required dependencies.
func NewAdminAuthService(
	admins repository.AdminRepository,
	sessions repository.SessionCache,
	codec SessionCodec,
	hasher PasswordHasher,
	signKey []byte,
	tokenTTL time.Duration,
	opts ...Option,
) *AdminAuthServiceImpl {
	s := &AdminAuthServiceImpl{
		admins:   admins,
		sessions: sessions,
		codec:    codec,
		hasher:   hasher,
		signKey:  signKey,
		tokenTTL: tokenTTL,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Signup creates the admin, then issues its session. A cache failure after the
// insert is reported as ErrInternal without removing the admin; a retry then
// yields ErrAlreadyExists.
func (s *AdminAuthServiceImpl) Signup(ctx context.Context, in SignupInput) (_ model.Tokens, err error) {
	defer s.observe("signup", s.now(), &err)

	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return model.Tokens{}, fmt.Errorf("%w: email and password are required", errs.ErrBadRequest)
	}
	if _, err := s.admins.GetByEmail(ctx, email); err == nil {
		return model.Tokens{}, fmt.Errorf("%w: email already registered", errs.ErrAlreadyExists)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, s.internal("lookup admin", uuid.Nil, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.Tokens{}, s.internal("hash password", uuid.Nil, err)
	}
	code, err := pkgcrypto.GenerateCode()
	if err != nil {
		return model.Tokens{}, s.internal("generate code", uuid.Nil, err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, s.internal("generate id", uuid.Nil, err)
	}

	a := &model.Admin{
		ID:                   id,
		Email:                email,
		PasswordHash:         hash,
		VerificationCodeHash: pkgcrypto.HashCode(code),
		Profile:              in.Profile,
	}
	if err := s.admins.Create(ctx, a); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.Tokens{}, fmt.Errorf("%w: email already registered", errs.ErrAlreadyExists)
		}
		return model.Tokens{}, s.internal("create admin", id, err)
	}
	return s.issueSessionToken(ctx, id)
}

// Login authenticates by email and password. An admin without a password
// must go through the reset flow and gets ErrBadRequest, not ErrUnauthorized.
func (s *AdminAuthServiceImpl) Login(ctx context.Context, email, password string) (_ model.Tokens, err error) {
	defer s.observe("login", s.now(), &err)

	a, err := s.findByEmail(ctx, email)
	if err != nil {
		return model.Tokens{}, err
	}
	if a.PasswordHash == "" {
		return model.Tokens{}, fmt.Errorf("%w: password reset required", errs.ErrBadRequest)
	}
	if !s.hasher.Verify(password, a.PasswordHash) {
		return model.Tokens{}, fmt.Errorf("%w: invalid credentials", errs.ErrUnauthorized)
	}
	return s.issueSessionToken(ctx, a.ID)
}

// issueSessionToken signs a token for id, caches its encrypted copy under id
// (overwriting the previous one) and returns the plaintext token.
func (s *AdminAuthServiceImpl) issueSessionToken(ctx context.Context, id uuid.UUID) (model.Tokens, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, s.internal("generate token id", id, err)
	}
	now := s.now()
	exp := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, s.internal("sign token", id, err)
	}
	enc, err := s.codec.Encode(signed)
	if err != nil {
		return model.Tokens{}, s.internal("encrypt session", id, err)
	}
	if err := s.sessions.Set(ctx, id.String(), enc); err != nil {
		return model.Tokens{}, s.internal("cache session", id, err)
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// RequestPasswordReset overwrites the active reset code of the admin.
func (s *AdminAuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) (_ string, err error) {
	defer s.observe("reset_request", s.now(), &err)

	a, err := s.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	code, err := s.rotateCode(ctx, a.ID)
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *AdminAuthServiceImpl) VerifyResetCode(ctx context.Context, code string) (err error) {
	defer s.observe("reset_verify", s.now(), &err)

	_, err = s.findByCode(ctx, code)
	return err
}

// ResetPassword stores the new password and then rotates the reset code so the
// same code cannot be replayed. If rotation fails the password is already
// changed and the old code stays valid until the next reset-link request.
func (s *AdminAuthServiceImpl) ResetPassword(ctx context.Context, code, newPassword string) (err error) {
	defer s.observe("reset_password", s.now(), &err)

	if newPassword == "" {
		return fmt.Errorf("%w: password is required", errs.ErrBadRequest)
	}
	a, err := s.findByCode(ctx, code)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.internal("hash password", a.ID, err)
	}
	if err := s.admins.UpdatePassword(ctx, a.ID, hash); err != nil {
		return s.internal("update password", a.ID, err)
	}
	_, err = s.rotateCode(ctx, a.ID)
	return err
}

func (s *AdminAuthServiceImpl) Profile(ctx context.Context, id uuid.UUID) (_ *model.Admin, err error) {
	defer s.observe("profile", s.now(), &err)

	a, err := s.admins.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: admin not found", errs.ErrNotFound)
		}
		return nil, s.internal("load admin", id, err)
	}
	return a, nil
}

// UpdateProfile changes only the provided fields. A new email is normalized
// and must not belong to another admin.
func (s *AdminAuthServiceImpl) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (_ *model.Admin, err error) {
	defer s.observe("profile_update", s.now(), &err)

	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email must not be empty", errs.ErrBadRequest)
		}
		upd.Email = &email
		other, err := s.admins.GetByEmail(ctx, email)
		switch {
		case err == nil && other.ID != id:
			return nil, fmt.Errorf("%w: email already registered", errs.ErrAlreadyExists)
		case err != nil && !errors.Is(err, errs.ErrNotFound):
			return nil, s.internal("lookup admin", id, err)
		}
	}
	if upd.Empty() {
		return s.Profile(ctx, id)
	}

	a, err := s.admins.UpdateProfile(ctx, id, upd)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("%w: admin not found", errs.ErrNotFound)
	case errors.Is(err, errs.ErrAlreadyExists):
		return nil, fmt.Errorf("%w: email already registered", errs.ErrAlreadyExists)
	default:
		return nil, s.internal("update profile", id, err)
	}
}

// Authenticate accepts a token only while it is the latest one issued for its
// subject, as recorded in the session cache. The identity store is not read.
func (s *AdminAuthServiceImpl) Authenticate(ctx context.Context, token string) (_ uuid.UUID, err error) {
	defer s.observe("authenticate", s.now(), &err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.signKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token subject", errs.ErrUnauthorized)
	}

	enc, ok, err := s.sessions.Get(ctx, id.String())
	if err != nil {
		return uuid.Nil, s.internal("read session", id, err)
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: session not active", errs.ErrUnauthorized)
	}
	cached, err := s.codec.Decode(enc)
	if err != nil {
		s.log.Warn("cached session undecryptable", zap.String("admin_id", id.String()), zap.Error(err))
		return uuid.Nil, fmt.Errorf("%w: session not active", errs.ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(cached), []byte(token)) != 1 {
		return uuid.Nil, fmt.Errorf("%w: session superseded", errs.ErrUnauthorized)
	}
	return id, nil
}

func (s *AdminAuthServiceImpl) findByEmail(ctx context.Context, email string) (*model.Admin, error) {
	a, err := s.admins.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: admin not found", errs.ErrNotFound)
		}
		return nil, s.internal("lookup admin", uuid.Nil, err)
	}
	return a, nil
}

func (s *AdminAuthServiceImpl) findByCode(ctx context.Context, code string) (*model.Admin, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: invalid reset code", errs.ErrBadRequest)
	}
	a, err := s.admins.GetByVerificationCodeHash(ctx, pkgcrypto.HashCode(code))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid reset code", errs.ErrBadRequest)
		}
		return nil, s.internal("lookup reset code", uuid.Nil, err)
	}
	return a, nil
}

// rotateCode replaces the active reset code of id and returns the new plaintext.
func (s *AdminAuthServiceImpl) rotateCode(ctx context.Context, id uuid.UUID) (string, error) {
	code, err := pkgcrypto.GenerateCode()
	if err != nil {
		return "", s.internal("generate code", id, err)
	}
	if err := s.admins.UpdateVerificationCode(ctx, id, pkgcrypto.HashCode(code)); err != nil {
		return "", s.internal("store reset code", id, err)
	}
	return code, nil
}

// internal logs a downstream failure and wraps it as ErrInternal.
func (s *AdminAuthServiceImpl) internal(op string, id uuid.UUID, err error) error {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	if id != uuid.Nil {
		fields = append(fields, zap.String("admin_id", id.String()))
	}
	s.log.Error("auth downstream failure", fields...)
	return fmt.Errorf("%w: %s: %w", errs.ErrInternal, op, err)
}

func (s *AdminAuthServiceImpl) observe(op string, start time.Time, err *error) {
	s.metrics.RecordAuth(op, *err, s.now().Sub(start))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
