package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	pkgcrypto "github.com/and161185/cms-admin/internal/crypto"
	"github.com/and161185/cms-admin/internal/crypto/sessioncrypto"
	"github.com/and161185/cms-admin/internal/errs"
	"github.com/and161185/cms-admin/internal/metrics"
	"github.com/and161185/cms-admin/internal/model"
	"github.com/and161185/cms-admin/internal/repository"
)

type fakeAdmins struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Admin

	createErr     error
	getErr        error
	updatePwdErr  error
	updateCodeErr error
}

var _ repository.AdminRepository = (*fakeAdmins)(nil)

func newFakeAdmins() *fakeAdmins { return &fakeAdmins{byID: map[uuid.UUID]*model.Admin{}} }

func (f *fakeAdmins) Create(_ context.Context, a *model.Admin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.Email == a.Email {
			return errs.ErrAlreadyExists
		}
	}
	cpy := *a
	f.byID[a.ID] = &cpy
	return nil
}

func (f *fakeAdmins) find(match func(*model.Admin) bool) (*model.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byID {
		if match(a) {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAdmins) GetByID(_ context.Context, id uuid.UUID) (*model.Admin, error) {
	return f.find(func(a *model.Admin) bool { return a.ID == id })
}

func (f *fakeAdmins) GetByEmail(_ context.Context, email string) (*model.Admin, error) {
	return f.find(func(a *model.Admin) bool { return a.Email == email })
}

func (f *fakeAdmins) GetByVerificationCodeHash(_ context.Context, h string) (*model.Admin, error) {
	if h == "" {
		return nil, errs.ErrNotFound
	}
	return f.find(func(a *model.Admin) bool { return a.VerificationCodeHash == h })
}

func (f *fakeAdmins) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updatePwdErr != nil {
		return f.updatePwdErr
	}
	a, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAdmins) UpdateVerificationCode(_ context.Context, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateCodeErr != nil {
		return f.updateCodeErr
	}
	a, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.VerificationCodeHash = hash
	return nil
}

func (f *fakeAdmins) UpdateProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
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
	c := *a
	return &c, nil
}

type fakeCache struct {
	mu   sync.Mutex
	m    map[string]model.EncryptedSession
	sets int

	setErr error
	getErr error
}

var _ repository.SessionCache = (*fakeCache)(nil)

func (c *fakeCache) Set(_ context.Context, key string, s model.EncryptedSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if c.m == nil {
		c.m = map[string]model.EncryptedSession{}
	}
	c.m[key] = s
	c.sets++
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) (model.EncryptedSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return model.EncryptedSession{}, false, c.getErr
	}
	s, ok := c.m[key]
	return s, ok, nil
}

type failingHasher struct{ PasswordHasher }

func (failingHasher) Hash(string) (string, error) { return "", errors.New("hash boom") }

var testParams = pkgcrypto.Params{Time: 1, Memory: 64, Threads: 1}

type env struct {
	svc    *AdminAuthServiceImpl
	admins *fakeAdmins
	cache  *fakeCache
	codec  *sessioncrypto.Codec
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	hk, err := sessioncrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := sessioncrypto.DeriveKey(hk)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	codec, err := sessioncrypto.NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	e := &env{admins: newFakeAdmins(), cache: &fakeCache{}, codec: codec}
	e.svc = NewAdminAuthService(e.admins, e.cache, codec, pkgcrypto.NewHasher(testParams),
		[]byte("sign-secret"), 24*time.Hour, opts...)
	return e
}

func (e *env) cachedToken(t *testing.T, id uuid.UUID) string {
	t.Helper()
	enc, ok, _ := e.cache.Get(context.Background(), id.String())
	if !ok {
		t.Fatalf("no cache entry for %s", id)
	}
	pt, err := e.codec.Decode(enc)
	if err != nil {
		t.Fatalf("Decode cached session: %v", err)
	}
	return pt
}

func subjectOf(t *testing.T, token string) uuid.UUID {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return []byte("sign-secret"), nil }); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	return uuid.Must(uuid.FromString(claims.Subject))
}

func TestSignupLogin_SessionLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	t1, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "Secret123"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	id := subjectOf(t, t1.AccessToken)
	if got := e.cachedToken(t, id); got != t1.AccessToken {
		t.Fatalf("cache holds %q, want T1", got)
	}
	if e.cache.sets != 1 {
		t.Fatalf("signup wrote cache %d times, want 1", e.cache.sets)
	}
	before, _, _ := e.cache.Get(ctx, id.String())

	if _, err := e.svc.Login(ctx, "a@x.com", "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}
	after, _, _ := e.cache.Get(ctx, id.String())
	if before != after || e.cache.sets != 1 {
		t.Fatalf("failed login touched the cache")
	}

	t2, err := e.svc.Login(ctx, "a@x.com", "Secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if t2.AccessToken == t1.AccessToken {
		t.Fatalf("T2 equals T1")
	}
	if got := e.cachedToken(t, id); got != t2.AccessToken {
		t.Fatalf("cache not overwritten with T2")
	}
	if len(e.cache.m) != 1 {
		t.Fatalf("want a single cache entry per admin, got %d", len(e.cache.m))
	}
}

func TestSignup_Validation_Conflict_AndFailures(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Signup(ctx, SignupInput{Email: " ", Password: "p"}); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest on empty email, got %v", err)
	}
	if _, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com"}); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest on empty password, got %v", err)
	}

	in := SignupInput{Email: " A@X.com ", Password: "p", Profile: model.Profile{FirstName: "Ada"}}
	if _, err := e.svc.Signup(ctx, in); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	a, err := e.admins.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("admin not stored normalized: %v", err)
	}
	if a.FirstName != "Ada" || a.VerificationCodeHash == "" || a.PasswordHash == "" {
		t.Fatalf("stored admin incomplete: %+v", a)
	}
	if a.PasswordHash == "p" {
		t.Fatalf("password stored in plaintext")
	}

	if _, err := e.svc.Signup(ctx, in); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate, got %v", err)
	}

	e.admins.createErr = errors.New("db down")
	if _, err := e.svc.Signup(ctx, SignupInput{Email: "b@x.com", Password: "p"}); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal on store failure, got %v", err)
	}
	e.admins.createErr = nil

	e.svc.hasher = failingHasher{}
	if _, err := e.svc.Signup(ctx, SignupInput{Email: "c@x.com", Password: "p"}); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal on hash failure, got %v", err)
	}
}

func TestSignup_CacheFailureKeepsAdmin(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.cache.setErr = errors.New("cache down")
	if _, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "p"}); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal on cache failure, got %v", err)
	}
	if _, err := e.admins.GetByEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("admin should stay persisted: %v", err)
	}
	e.cache.setErr = nil
	if _, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "p"}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("retry after partial failure: want ErrAlreadyExists, got %v", err)
	}
	if _, err := e.svc.Login(ctx, "a@x.com", "p"); err != nil {
		t.Fatalf("login after partial signup: %v", err)
	}
}

func TestLogin_Errors(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Login(ctx, "nobody@x.com", "p"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	id := uuid.Must(uuid.NewV4())
	e.admins.byID[id] = &model.Admin{ID: id, Email: "nopw@x.com"}
	if _, err := e.svc.Login(ctx, "nopw@x.com", "anything"); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest for admin without password, got %v", err)
	}

	e.admins.getErr = errors.New("db down")
	if _, err := e.svc.Login(ctx, "nopw@x.com", "anything"); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal on store failure, got %v", err)
	}
}

func TestLogin_LegacyBcryptHash(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	id := uuid.Must(uuid.NewV4())
	e.admins.byID[id] = &model.Admin{ID: id, Email: "old@x.com", PasswordHash: string(legacy)}

	if _, err := e.svc.Login(ctx, "old@x.com", "not-it"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := e.svc.Login(ctx, "old@x.com", "legacy-pass"); err != nil {
		t.Fatalf("legacy hash login: %v", err)
	}
}

func TestPasswordReset_SingleUse(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "Secret123"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := e.svc.RequestPasswordReset(ctx, "none@x.com"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown email, got %v", err)
	}

	c1, err := e.svc.RequestPasswordReset(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if len(c1) != pkgcrypto.CodeLength {
		t.Fatalf("code len=%d", len(c1))
	}
	c2, err := e.svc.RequestPasswordReset(ctx, "A@x.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset(2): %v", err)
	}
	if err := e.svc.VerifyResetCode(ctx, c1); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("superseded code: want ErrBadRequest, got %v", err)
	}
	if err := e.svc.VerifyResetCode(ctx, c2); err != nil {
		t.Fatalf("VerifyResetCode: %v", err)
	}
	// verification does not consume the code
	if err := e.svc.VerifyResetCode(ctx, c2); err != nil {
		t.Fatalf("VerifyResetCode(again): %v", err)
	}
	if err := e.svc.VerifyResetCode(ctx, ""); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("empty code: want ErrBadRequest, got %v", err)
	}

	if err := e.svc.ResetPassword(ctx, c2, ""); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("empty password: want ErrBadRequest, got %v", err)
	}
	if err := e.svc.ResetPassword(ctx, c2, "NewSecret"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := e.svc.ResetPassword(ctx, c2, "Another"); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("stale code: want ErrBadRequest, got %v", err)
	}
	if err := e.svc.VerifyResetCode(ctx, c2); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("used code still verifies: %v", err)
	}

	if _, err := e.svc.Login(ctx, "a@x.com", "Secret123"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := e.svc.Login(ctx, "a@x.com", "NewSecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestPasswordReset_Failures(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	id := uuid.Must(uuid.NewV4())
	e.admins.byID[id] = &model.Admin{ID: id, Email: "nopw@x.com"}

	e.admins.updateCodeErr = errors.New("db down")
	if _, err := e.svc.RequestPasswordReset(ctx, "nopw@x.com"); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal when code cannot be stored, got %v", err)
	}
	e.admins.updateCodeErr = nil

	code, err := e.svc.RequestPasswordReset(ctx, "nopw@x.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	e.admins.updatePwdErr = errors.New("db down")
	if err := e.svc.ResetPassword(ctx, code, "pw"); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal on password update failure, got %v", err)
	}
	e.admins.updatePwdErr = nil

	e.admins.updateCodeErr = errors.New("db down")
	if err := e.svc.ResetPassword(ctx, code, "pw"); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("want ErrInternal on rotation failure, got %v", err)
	}
	e.admins.updateCodeErr = nil

	// the password reset itself went through before rotation failed
	if _, err := e.svc.Login(ctx, "nopw@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	now := time.Now()
	e := newEnv(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	t1, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "p"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	id, err := e.svc.Authenticate(ctx, t1.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id != subjectOf(t, t1.AccessToken) {
		t.Fatalf("wrong id")
	}

	t2, err := e.svc.Login(ctx, "a@x.com", "p")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := e.svc.Authenticate(ctx, t1.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("superseded token: want ErrUnauthorized, got %v", err)
	}
	if _, err := e.svc.Authenticate(ctx, t2.AccessToken); err != nil {
		t.Fatalf("Authenticate(T2): %v", err)
	}

	if _, err := e.svc.Authenticate(ctx, "garbage"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("garbage token: want ErrUnauthorized, got %v", err)
	}
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("other-key"))
	if _, err := e.svc.Authenticate(ctx, forged); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("forged token: want ErrUnauthorized, got %v", err)
	}

	e.cache.m[id.String()] = model.EncryptedSession{IV: "00", EncryptedData: "00"}
	if _, err := e.svc.Authenticate(ctx, t2.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("undecryptable cache: want ErrUnauthorized, got %v", err)
	}
	delete(e.cache.m, id.String())
	if _, err := e.svc.Authenticate(ctx, t2.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("missing session: want ErrUnauthorized, got %v", err)
	}

	e.cache.getErr = errors.New("cache down")
	if _, err := e.svc.Authenticate(ctx, t2.AccessToken); !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("cache failure: want ErrInternal, got %v", err)
	}
}

func TestAuthenticate_Expiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	e := newEnv(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	tok, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "p"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if !tok.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("ExpiresAt=%v", tok.ExpiresAt)
	}

	now = now.Add(24*time.Hour + 10*time.Second)
	if _, err := e.svc.Authenticate(ctx, tok.AccessToken); err != nil {
		t.Fatalf("within leeway: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := e.svc.Authenticate(ctx, tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expired token: want ErrUnauthorized, got %v", err)
	}
}

func TestProfile_And_UpdateProfile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	t1, err := e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "p", Profile: model.Profile{FirstName: "Ada", LastName: "L"}})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := e.svc.Signup(ctx, SignupInput{Email: "b@x.com", Password: "p"}); err != nil {
		t.Fatalf("Signup(b): %v", err)
	}
	id := subjectOf(t, t1.AccessToken)

	p, err := e.svc.Profile(ctx, id)
	if err != nil || p.FirstName != "Ada" {
		t.Fatalf("Profile: %+v %v", p, err)
	}
	if _, err := e.svc.Profile(ctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	first := "Augusta"
	p, err = e.svc.UpdateProfile(ctx, id, model.ProfileUpdate{FirstName: &first})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.FirstName != "Augusta" || p.LastName != "L" || p.Email != "a@x.com" {
		t.Fatalf("partial update changed other fields: %+v", p)
	}

	taken := "B@x.com"
	if _, err := e.svc.UpdateProfile(ctx, id, model.ProfileUpdate{Email: &taken}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("taken email: want ErrAlreadyExists, got %v", err)
	}
	blank := "  "
	if _, err := e.svc.UpdateProfile(ctx, id, model.ProfileUpdate{Email: &blank}); !errors.Is(err, errs.ErrBadRequest) {
		t.Fatalf("blank email: want ErrBadRequest, got %v", err)
	}
	same := "A@X.COM"
	p, err = e.svc.UpdateProfile(ctx, id, model.ProfileUpdate{Email: &same})
	if err != nil || p.Email != "a@x.com" {
		t.Fatalf("own email: %+v %v", p, err)
	}

	p, err = e.svc.UpdateProfile(ctx, id, model.ProfileUpdate{})
	if err != nil || p.FirstName != "Augusta" {
		t.Fatalf("empty update: %+v %v", p, err)
	}
	if _, err := e.svc.UpdateProfile(ctx, uuid.Must(uuid.NewV4()), model.ProfileUpdate{FirstName: &first}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown admin: want ErrNotFound, got %v", err)
	}
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	e := newEnv(t, WithMetrics(m))
	ctx := context.Background()

	_, _ = e.svc.Signup(ctx, SignupInput{Email: "a@x.com", Password: "p"})
	_, _ = e.svc.Login(ctx, "a@x.com", "bad")
	_, _ = e.svc.Login(ctx, "a@x.com", "p")

	if got := testutil.ToFloat64(m.AuthOps.WithLabelValues("signup", metrics.OutcomeSuccess)); got != 1 {
		t.Fatalf("signup success=%v", got)
	}
	if got := testutil.ToFloat64(m.AuthOps.WithLabelValues("login", metrics.OutcomeUnauthorized)); got != 1 {
		t.Fatalf("login unauthorized=%v", got)
	}
	if got := testutil.ToFloat64(m.AuthOps.WithLabelValues("login", metrics.OutcomeSuccess)); got != 1 {
		t.Fatalf("login success=%v", got)
	}
}
