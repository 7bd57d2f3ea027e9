/*
main.go - Application entry point

PURPOSE:
  Starts the loyalty ledger server: configuration, logging, storage,
  the audit scheduler and the HTTP API, with graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, LOYALTY_* environment, flags)
  2. Configure logrus level and format
  3. Open the SQLite store and bootstrap the superuser
  4. Start the cron audit scheduler
  5. Serve HTTP until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LOYALTY_PORT)
  -db      SQLite database path (overrides LOYALTY_DB_PATH)
           Use ":memory:" for an in-memory database

EXAMPLES:
  LOYALTY_JWT_SECRET=dev ./server -db=":memory:"
  LOYALTY_JWT_SECRET=dev LOYALTY_LOG_FORMAT=json ./server -port=3000

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/api"
	"github.com/warp/loyalty-engine/auth"
	"github.com/warp/loyalty-engine/config"
	"github.com/warp/loyalty-engine/jobs"
	"github.com/warp/loyalty-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	// Flags override the environment
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	setupLogging(cfg)

	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			log.WithError(err).Fatal("Failed to create database directory")
		}
	}
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		log.WithError(err).Fatal("Database not reachable")
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("Failed to create token issuer")
	}
	auditor, err := jobs.NewAuditScheduler(store, cfg.AuditSchedule)
	if err != nil {
		log.WithError(err).Fatal("Failed to create audit scheduler")
	}

	handler := api.NewHandler(store, issuer, auditor, cfg.PointsPerDollar)
	if cfg.SuperuserUtorid != "" {
		if err := handler.Users.EnsureSuperuser(ctx, cfg.SuperuserUtorid, cfg.SuperuserPassword); err != nil {
			log.WithError(err).Fatal("Failed to bootstrap superuser")
		}
	}

	if err := auditor.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start audit scheduler")
	}
	defer auditor.Stop()

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute)
	go limiter.Run(ctx)

	router := api.NewRouter(handler, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"port": *port, "db": *dbPath}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig.String()).Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	cancel()

	log.Info("Server stopped")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
