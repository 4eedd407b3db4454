// Package httpserver exposes the admin auth REST API.
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/cms-admin/internal/metrics"
	"github.com/and161185/cms-admin/internal/model"
	"github.com/and161185/cms-admin/internal/notify"
	"github.com/and161185/cms-admin/internal/service"
)

// Server wires the auth service into HTTP handlers.
type Server struct {
	auth     service.AdminAuthService
	notifier notify.Sender
	log      *zap.Logger

	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	ready    func(context.Context) error
}

// Option customizes Server.
type Option func(*Server)

// WithMetrics counts requests in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) { s.metrics, s.gatherer = m, g }
}

// WithReadiness makes /healthz report the result of check.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// New constructs the HTTP server.
func New(auth service.AdminAuthService, notifier notify.Sender, log *zap.Logger, opts ...Option) *Server {
	s := &Server{auth: auth, notifier: notifier, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the router with the middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging(s.log, s.metrics))
	r.Use(Recover(s.log))

	r.Get("/healthz", s.healthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/admin", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/login", s.login)
		r.Post("/password/reset-link", s.resetLink)
		r.Post("/password/verify-code", s.verifyCode)
		r.Post("/password/reset", s.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAdmin)
			r.Get("/profile", s.profile)
			r.Patch("/profile", s.updateProfile)
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signupRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	tok, err := s.auth.Signup(r.Context(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Profile: model.Profile{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			PhoneNumber: req.PhoneNumber,
		},
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: tok.AccessToken})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	tok, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok.AccessToken})
}

type profileResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

func toProfileResponse(a *model.Admin) profileResponse {
	return profileResponse{
		ID:          a.ID.String(),
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		PhoneNumber: a.PhoneNumber,
	}
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	id, _ := AdminIDFromCtx(r.Context())
	a, err := s.auth.Profile(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(a))
}

type profileUpdateRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	id, _ := AdminIDFromCtx(r.Context())
	a, err := s.auth.UpdateProfile(r.Context(), id, model.ProfileUpdate(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(a))
}

type emailRequest struct {
	Email string `json:"email"`
}

// resetLink issues a reset code and hands it to the notifier; the code is
// never part of the response.
func (s *Server) resetLink(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	code, err := s.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.notifier.SendResetCode(r.Context(), req.Email, code); err != nil {
		s.log.Error("reset code delivery failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	writeMessage(w, "reset code sent")
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := s.auth.VerifyResetCode(r.Context(), req.Code); err != nil {
		writeServiceError(w, err)
		return
	}
	writeMessage(w, "code is valid")
}

type resetRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := s.auth.ResetPassword(r.Context(), req.Code, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	writeMessage(w, "password updated")
}
