package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/config"
	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/email"
	"github.com/pitchingcoachu/portal/internal/logging"
	"github.com/pitchingcoachu/portal/internal/password"
	"github.com/pitchingcoachu/portal/internal/server"
	"github.com/pitchingcoachu/portal/internal/session"
	"github.com/pitchingcoachu/portal/internal/store"
)

const cleanupInterval = time.Hour

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the portal HTTP server",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			return serve(c.Context, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(cfg.LogLevel)
	hasher := password.NewHasher()

	var (
		db     *database.DB
		lookup auth.UserLookup
		resets *auth.ResetService
	)
	if cfg.DatabaseConfigured() {
		var err error
		db, err = database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := auth.EnsureSchemaReady(ctx, db, cfg.Users, hasher, logger.With("component", "schema")); err != nil {
			return err
		}
		lookup = store.NewUserStore(db)
		resets = auth.NewResetService(db, hasher)
	} else {
		logger.Warn("DATABASE_URL not set; using configured users only, password reset disabled",
			"users", len(cfg.Users.Users), "source", cfg.Users.Shape.String())
	}
	if cfg.Users.Skipped > 0 {
		logger.Warn("skipped incomplete configured users", "count", cfg.Users.Skipped)
	}

	validator, err := auth.NewCredentialValidator(lookup, cfg.Users, hasher, logger.With("component", "credentials"))
	if err != nil {
		return err
	}
	codec, err := session.NewCodec(cfg.AuthSecret)
	if err != nil {
		return err
	}

	mailer := email.NewClient(cfg.ResendAPIKey, cfg.FromEmail, cfg.BaseURL)
	if !mailer.Configured() && db != nil {
		logger.Warn("RESEND_API_KEY not set; reset emails will not be delivered")
	}

	srv := server.New(server.Deps{
		DB:          db,
		Credentials: validator,
		Codec:       codec,
		Cookies:     session.NewCookiePolicy(cfg.SecureCookies(), cfg.CookieDomain),
		Resets:      resets,
		Mailer:      mailer,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	go runCleanup(cleanupCtx, srv, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("portal starting", "addr", httpServer.Addr, "env", cfg.Env, "database", db != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cleanupCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runCleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if resets := srv.ResetService(); resets != nil {
				if n, err := resets.DeleteExpired(ctx); err != nil {
					logger.Error("cleanup expired reset tokens", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired reset tokens", "count", n)
				}
			}
			srv.RateLimiter().Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
