package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/config"
	"github.com/alphabot-ai/inkpost/internal/content"
	httpapp "github.com/alphabot-ai/inkpost/internal/http"
	"github.com/alphabot-ai/inkpost/internal/logging"
	"github.com/alphabot-ai/inkpost/internal/metrics"
	"github.com/alphabot-ai/inkpost/internal/rate"
	"github.com/alphabot-ai/inkpost/internal/store/sqlstore"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Start the Inkpost server (default)",
		Long: `Start the HTTP server.

Environment Variables:
  INKPOST_ADDR / PORT           Listen address (default: :8080)
  DATABASE_URL                  sqlite:///posts.db or postgres://...
  SECRET_KEY                    Session signing key (required)
  INKPOST_DEV                   Development mode; allows running without SECRET_KEY
  INKPOST_SESSION_TTL           Session lifetime (default: 24h)
  INKPOST_COOKIE_SECURE         Mark cookies Secure (default: false)
  INKPOST_TRUST_PROXY           Rate-limit by X-Forwarded-For (behind a proxy only)
  INKPOST_PASSWORD_METHOD       pbkdf2:sha256, scrypt or bcrypt
  INKPOST_LOG_LEVEL             debug, info, warn, error
  INKPOST_LOG_FORMAT            text or json
  INKPOST_CONFIG                Optional YAML config file`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

// loadRuntime reads the configuration and configures logging from it.
func loadRuntime() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logging.Configure(cfg.Log)
	return cfg, logging.GetLogger("main"), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	if cfg.Dev && cfg.SecretKey == config.DevSecretKey {
		log.Warn("development mode: sessions are signed with the development key")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	hasher, err := auth.NewHasher(cfg.Password)
	if err != nil {
		return err
	}
	m := metrics.New()
	authSvc := auth.NewService(st, hasher, cfg.SecretKey, cfg.SessionTTL, m)
	server, err := httpapp.NewServer(content.NewService(st, m), authSvc, st, rate.NewMemory(), m, cfg)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logging.StdLogger("http.server", slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("inkpost listening", "addr", cfg.Addr, "password_method", hasher.Method())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			st, err := sqlstore.Connect(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("database is up to date")
			return nil
		},
	}
}

func newSessionsCmd() *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Manage server-side sessions",
	}
	sessions.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			st, err := sqlstore.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()
			hasher, err := auth.NewHasher(cfg.Password)
			if err != nil {
				return err
			}
			n, err := auth.NewService(st, hasher, cfg.SecretKey, cfg.SessionTTL, nil).PruneSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d expired session(s)\n", n)
			return nil
		},
	})
	return sessions
}
