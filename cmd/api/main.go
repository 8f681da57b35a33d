// Command api runs the gift-note HTTP backend.
//
// Startup sequence:
//  1. Load .env (best effort) and typed configuration from the environment.
//  2. Configure zerolog (level, optional pretty console output).
//  3. Open SQLite, run migrations, and prepare the profile image store.
//  4. Set up OpenTelemetry tracing (no-op unless OTEL_ENABLED).
//  5. Build the Gin engine, register routes, and serve with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/witchdelivery/sendy-backend/internal/config"
	httpapi "github.com/witchdelivery/sendy-backend/internal/http"
	"github.com/witchdelivery/sendy-backend/internal/observability"
	"github.com/witchdelivery/sendy-backend/internal/repo"
	"github.com/witchdelivery/sendy-backend/internal/storage"
	"github.com/witchdelivery/sendy-backend/internal/sysutil"

	_ "github.com/witchdelivery/sendy-backend/docs"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title           Sendy Backend API
// @version         1.0
// @description     Gift-note delivery backend: member accounts, messages, and mailboxes.
// @BasePath        /sendy
func main() {
	// Environment (.env is optional; real env always wins)
	_ = godotenv.Load()
	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting sendy-backend")

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// Profile image store
	store, err := storage.NewFSStore(cfg.MediaDir)
	if err != nil {
		log.Fatal().Err(err).Str("media_dir", cfg.MediaDir).Msg("prepare media store")
	}

	// Tracing (no-op when disabled)
	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup opentelemetry")
	}

	// HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("listening")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}
