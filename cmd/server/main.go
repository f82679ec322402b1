package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/api"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/config"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/db"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/designs"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/email"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/logx"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/middleware"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/reminder"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
)

func main() {
	// A missing .env is fine; config falls back to the real environment
	// and built-in defaults.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logx.New(cfg.Log.Level, cfg.Log.Format)

	middleware.SetSecret(cfg.Auth.JWTSecret)

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open store")
	}
	defer closeStore()
	log.Info().Str("driver", cfg.Database.Driver).Msg("store ready")

	var mailer email.Service
	if cfg.SMTP.Configured() {
		mailer = email.NewSMTPService(&email.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
		})
		log.Info().Str("host", cfg.SMTP.Host).Int("port", cfg.SMTP.Port).Msg("sending reminder emails over smtp")
	} else {
		mailer = email.NewLogService(log)
		log.Info().Msg("smtp not configured, reminder emails go to the log")
	}

	reminders := services.NewReminderService(store, services.NewTaskService(store), mailer, log)
	reminders.SetSendHour(cfg.Reminders.Hour)

	commit := os.Getenv("COHORTS_COMMIT")
	buildTime := os.Getenv("COHORTS_BUILD_TIME")

	mux := http.NewServeMux()
	api.NewRouter(store, api.RouterOptions{
		Log:         log,
		TokenTTL:    cfg.Auth.TokenTTL,
		AdminEmails: cfg.Auth.AdminEmails,
		Reminders:   reminders,
		AuthRPS:     cfg.Server.RateLimitRPS,
		AuthBurst:   cfg.Server.RateLimitBurst,
	}).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "30-Day Cohorts API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.RequestLogger(log)(
		middleware.SecureHeaders(middleware.NoStore(middleware.CORS(middleware.WithAuth(mux)))))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Reminders.Enabled {
		daemon := reminder.NewDaemon(reminders, log)
		if err := daemon.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("start reminder daemon")
		}
		defer daemon.Stop()
	} else {
		log.Info().Msg("reminder daemon disabled")
	}

	if cfg.Designs.Dir != "" {
		watcher := designs.NewWatcher(cfg.Designs.Dir, services.NewDesignService(store), log)
		if cfg.Designs.Watch {
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					log.Error().Err(err).Str("dir", cfg.Designs.Dir).Msg("design watcher stopped")
				}
			}()
		} else {
			watcher.ImportExisting()
		}
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// openStore builds the configured store backend and returns a cleanup
// function for its underlying connection.
func openStore(cfg *config.Config, log zerolog.Logger) (api.Store, func(), error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return api.NewMemoryStore(), func() {}, nil
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(cfg.Database.SQLitePath))
		sqlDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.Database.SQLitePath, err)
		}
		store, err := db.NewSQLiteStore(sqlDB, log)
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		if err := db.RunMigrations(sqlDB, os.Getenv("COHORTS_MIGRATIONS_DIR")); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return store, func() { sqlDB.Close() }, nil
	case "postgres":
		pg, err := sqlx.Connect("postgres", cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.EnsureSchema(pg); err != nil {
			pg.Close()
			return nil, nil, err
		}
		store, err := db.NewPostgresStore(pg, log)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		return store, func() { pg.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
