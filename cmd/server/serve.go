package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/cms-admin/internal/config"
	pkgcrypto "github.com/and161185/cms-admin/internal/crypto"
	"github.com/and161185/cms-admin/internal/crypto/sessioncrypto"
	"github.com/and161185/cms-admin/internal/metrics"
	"github.com/and161185/cms-admin/internal/migrate"
	"github.com/and161185/cms-admin/internal/notify"
	"github.com/and161185/cms-admin/internal/repository"
	"github.com/and161185/cms-admin/internal/repository/memory"
	"github.com/and161185/cms-admin/internal/repository/postgres"
	"github.com/and161185/cms-admin/internal/repository/rediscache"
	httpserver "github.com/and161185/cms-admin/internal/server/http"
	"github.com/and161185/cms-admin/internal/service"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Dev)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// app holds the wired dependencies of a running server.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp connects the backends chosen by cfg and wires the HTTP handler.
// Without a DSN or Redis URL (dev only) the in-memory backends are used.
func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	var checks []func(context.Context) error

	key, err := sessioncrypto.DeriveKey(cfg.CacheKey)
	if err != nil {
		return nil, err
	}
	codec, err := sessioncrypto.NewCodec(key)
	if err != nil {
		return nil, err
	}

	var admins repository.AdminRepository
	if cfg.DSN != "" {
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks = append(checks, db.Ping)
		admins = postgres.NewAdminRepo(db)
	} else {
		log.Warn("no dsn configured, admins are kept in memory")
		admins = memory.NewAdminRepo()
	}

	var sessions repository.SessionCache
	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		sessions = rediscache.NewSessionCache(client, cfg.SessionTTL)
	} else {
		log.Warn("no redis-url configured, sessions are kept in memory")
		sessions = memory.NewSessionCache(cfg.SessionTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := service.NewAdminAuthService(admins, sessions, codec, pkgcrypto.NewHasher(cfg.HashParams()),
		[]byte(cfg.JWTSecret), cfg.TokenTTL,
		service.WithLogger(log), service.WithMetrics(m))

	srv := httpserver.New(svc, notify.NewLogSender(log, cfg.Dev), log,
		httpserver.WithMetrics(m, reg),
		httpserver.WithReadiness(func(ctx context.Context) error {
			for _, c := range checks {
				if err := c(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
	)
	a.handler = srv.Routes()
	return a, nil
}

// runServe serves until ctx is cancelled, then shuts down gracefully.
func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.Bool("dev", cfg.Dev),
	)

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(sctx); err != nil {
			log.Warn("graceful shutdown timed out", zap.Error(err))
			_ = hs.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			return err
		}
	}

	log.Info("shutdown complete")
	return nil
}
