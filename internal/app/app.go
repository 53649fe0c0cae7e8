// Package app assembles the OxiForms server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/config"
	"github.com/parisxmas/OxiDB/OxiForms/internal/handler"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/metrics"
	mw "github.com/parisxmas/OxiDB/OxiForms/internal/middleware"
	"github.com/parisxmas/OxiDB/OxiForms/internal/router"
	"github.com/parisxmas/OxiDB/OxiForms/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg      *config.Config
	log      logger.Logger
	backends *Backends
	limiter  *mw.RateLimiter
	Metrics  *metrics.Metrics
	Auth     *service.AuthService
	Handler  http.Handler
}

// New wires services and routes over already opened backends. The App takes
// ownership of b and closes it in Close.
func New(ctx context.Context, cfg *config.Config, b *Backends, log logger.Logger) (*App, error) {
	m := metrics.New()
	files := blob.NewResolver(b.Blobs, blob.Options{
		Timeout:     cfg.Blob.Timeout,
		Concurrency: cfg.Blob.UploadConcurrency,
		Recorder:    m,
		Logger:      log,
	})
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	timeout := cfg.Store.Timeout

	// Services
	authSvc := service.NewAuthService(b.Store, tokens, cfg.Auth.BcryptCost, timeout, log)
	formSvc := service.NewFormService(b.Store, files, timeout, log)
	subSvc := service.NewSubmissionService(b.Store, files, m, timeout, log)
	userSvc := service.NewUserService(b.Store, cfg.Auth.BcryptCost, timeout, log)
	adminSvc := service.NewAdminService(b.Store, m, timeout, log)
	dashSvc := service.NewDashboardService(b.Store, timeout, log)

	limiter, err := mw.NewRateLimiter(ctx, cfg.RateLimit.SubmitPerMinute, cfg.RateLimit.RedisURL, log)
	if err != nil {
		return nil, fmt.Errorf("app: rate limiter: %w", err)
	}

	// Router
	h := router.New(router.Deps{
		Tokens:        tokens,
		Accounts:      b.Store,
		LookupTimeout: timeout,
		Health:        b.Store,
		Limiter:       limiter,
		Metrics:       m,
		Logger:        log,
		Auth:          handler.NewAuthHandler(authSvc),
		Forms:         handler.NewFormHandler(formSvc),
		Submissions:   handler.NewSubmissionHandler(subSvc, cfg.Server.MaxUploadBytes),
		Users:         handler.NewUserHandler(userSvc),
		Admin:         handler.NewAdminHandler(adminSvc),
		Dashboard:     handler.NewDashboardHandler(dashSvc),
	})

	return &App{
		cfg:      cfg,
		log:      log,
		backends: b,
		limiter:  limiter,
		Metrics:  m,
		Auth:     authSvc,
		Handler:  h,
	}, nil
}

// SeedSuperAdmin creates the configured super admin account. It is a no-op
// when none is configured or the account exists.
func (a *App) SeedSuperAdmin(ctx context.Context) error {
	sa := a.cfg.SuperAdmin
	if sa.Email == "" {
		a.log.Warn("No super admin configured; admin approvals are impossible until one is seeded")
		return nil
	}
	created, err := a.Auth.SeedSuperAdmin(ctx, sa.Email, sa.Password)
	if err != nil {
		return fmt.Errorf("app: seed super admin: %w", err)
	}
	if !created {
		a.log.Debug("Super admin already present", "email", sa.Email)
	}
	return nil
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.Handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  2 * a.cfg.Server.ReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("OxiForms server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("Received shutdown signal, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}

func (a *App) Close() error {
	return errors.Join(a.limiter.Close(), a.backends.Close())
}
