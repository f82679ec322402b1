// Package config loads runtime configuration from COHORTS_* environment
// variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Reminders ReminderConfig
	Designs   DesignConfig
	Log       LogConfig
}

type ServerConfig struct {
	Addr string
	// Rate limit applied to the auth endpoints, per client IP.
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	// Driver selects the store backend: memory, sqlite or postgres.
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// AdminEmails are granted the admin flag on registration.
	AdminEmails []string
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Configured reports whether an SMTP relay is set up. Without one,
// reminder emails are logged instead of sent.
func (c SMTPConfig) Configured() bool {
	return c.Host != ""
}

type ReminderConfig struct {
	Enabled bool
	// Hour is the earliest local hour reminders go out.
	Hour int
}

type DesignConfig struct {
	// Dir is watched for cohort design documents; empty disables the
	// watcher.
	Dir   string
	Watch bool
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Addr:           getEnv("COHORTS_ADDR", ":8080"),
			RateLimitRPS:   getEnvAsFloat("COHORTS_RATE_LIMIT_RPS", 5),
			RateLimitBurst: getEnvAsInt("COHORTS_RATE_LIMIT_BURST", 10),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("COHORTS_DB_DRIVER", "memory"),
			SQLitePath:  getEnv("COHORTS_SQLITE_PATH", "./cohorts.db"),
			PostgresDSN: getEnv("COHORTS_POSTGRES_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("COHORTS_JWT_SECRET", "dev-secret-change-in-production"),
			TokenTTL:    getEnvAsDuration("COHORTS_TOKEN_TTL", 30*24*time.Hour),
			AdminEmails: getEnvAsList("COHORTS_ADMIN_EMAILS"),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("COHORTS_SMTP_HOST", ""),
			Port:      getEnvAsInt("COHORTS_SMTP_PORT", 587),
			Username:  getEnv("COHORTS_SMTP_USERNAME", ""),
			Password:  getEnv("COHORTS_SMTP_PASSWORD", ""),
			FromEmail: getEnv("COHORTS_SMTP_FROM_EMAIL", "declutter@localhost"),
			FromName:  getEnv("COHORTS_SMTP_FROM_NAME", "30-Day Declutter"),
		},
		Reminders: ReminderConfig{
			Enabled: getEnvAsBool("COHORTS_REMINDERS_ENABLED", true),
			Hour:    getEnvAsInt("COHORTS_REMINDER_HOUR", 10),
		},
		Designs: DesignConfig{
			Dir:   getEnv("COHORTS_DESIGN_DIR", ""),
			Watch: getEnvAsBool("COHORTS_DESIGN_WATCH", true),
		},
		Log: LogConfig{
			Level:  getEnv("COHORTS_LOG_LEVEL", "info"),
			Format: getEnv("COHORTS_LOG_FORMAT", "console"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
