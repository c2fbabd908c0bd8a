// Command server runs the HTTP API: settings are loaded once, the log and
// database layers are brought up, and the process shuts down gracefully on
// SIGINT/SIGTERM — in-flight requests drain before the pool is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Blank-import the supported drivers so they self-register with
	// database/sql; DriverFromDSN picks one based on DATABASE_URL.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Skryldev/apikit/config"
	"github.com/Skryldev/apikit/db"
	"github.com/Skryldev/apikit/httpapi"
	"github.com/Skryldev/apikit/logging"
	"github.com/Skryldev/apikit/providers"
	"github.com/Skryldev/apikit/service"
)

func main() {
	cfg := config.Load()

	logs, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Dir:         cfg.LogDir,
		MaxBytes:    cfg.LogMaxBytes,
		BackupCount: cfg.LogBackupCount,
		Console:     cfg.Debug,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logs.App
	log.Info().Str("version", cfg.AppVersion).Str("environment", cfg.Environment).
		Msgf("starting %s", cfg.AppName)

	driver, err := db.DriverFromDSN(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unsupported DATABASE_URL")
	}

	mgr, err := db.Open(db.Config{
		DSN:             cfg.DatabaseURL,
		DriverName:      driver,
		PoolSize:        cfg.DBPoolSize,
		MaxOverflow:     cfg.DBMaxOverflow,
		PrePing:         true,
		AcquireTimeout:  10 * time.Second,
		ConnMaxLifetime: 30 * time.Minute,
		DefaultTimeout:  10 * time.Second,
		Hooks: []db.Hook{
			db.NewLogHook(db.LogHookConfig{
				Logger:             log,
				SlowQueryThreshold: 200 * time.Millisecond,
			}),
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database initialization failed")
	}
	log.Info().Msg("database connection pool initialized")

	email := providers.NewEmailProvider(cfg, log)
	users := service.NewUserService(mgr,
		service.WithEmailProvider(email),
		service.WithLogger(log),
	)

	api := httpapi.New(cfg, mgr, users, logs)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	if err := mgr.Close(); err != nil {
		log.Error().Err(err).Msg("closing connection pool failed")
	}
	log.Info().Msg("shutdown complete")
}
