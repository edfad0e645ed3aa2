package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"reqtrack/internal/audit"
	"reqtrack/internal/auth"
	"reqtrack/internal/config"
	"reqtrack/internal/database"
	"reqtrack/internal/httpserver"
	"reqtrack/internal/logger"
	"reqtrack/internal/obs"
	"reqtrack/internal/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate the schema and run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()

	sessions := auth.NewSessionConfig(cfg.SessionDuration)
	if err := sessions.SetDuration(cfg.SessionDuration); err != nil {
		return fmt.Errorf("SESSION_DURATION: %w", err)
	}

	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	if err := obs.Register(prometheus.DefaultRegisterer, append(obs.Collectors(), audit.Collectors()...)...); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := audit.NewRecorder(lg)
	var issuer *auth.SessionIssuer
	if cfg.AuthMode == config.AuthModeSession {
		issuer = auth.NewSessionIssuer(cfg.JWTSecret, sessions)
	}
	authn, err := auth.NewAuthenticator(db, cfg.AuthMode, auth.NewGoogleVerifier(ctx, cfg.GoogleClientID), issuer, rec, lg)
	if err != nil {
		return err
	}

	limiter := httpserver.NewIPRateLimiter(cfg.LoginRatePerSec, cfg.LoginRateBurst)
	go limiter.Run(ctx, time.Minute)

	router := httpserver.NewRouter(httpserver.Deps{
		DB:             db,
		Log:            lg,
		Auth:           authn,
		Sessions:       sessions,
		Audit:          rec,
		Requirements:   services.NewRequirements(db, rec, lg),
		Documents:      services.NewDocuments(db, rec, lg),
		Users:          services.NewUsers(db, rec, lg),
		LoginLimiter:   limiter,
		GoogleClientID: cfg.GoogleClientID,
		Started:        time.Now(),

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		lg.Infow("listening", "port", cfg.HTTPPort, "auth_mode", cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
