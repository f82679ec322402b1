package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Auth.TokenTTL != 30*24*time.Hour {
		t.Errorf("TokenTTL = %v, want 720h", cfg.Auth.TokenTTL)
	}
	if cfg.Reminders.Hour != 10 {
		t.Errorf("Reminders.Hour = %d, want 10", cfg.Reminders.Hour)
	}
	if !cfg.Reminders.Enabled {
		t.Error("Reminders.Enabled = false, want true by default")
	}
	if cfg.SMTP.Configured() {
		t.Error("SMTP.Configured() = true with no host set")
	}
	if len(cfg.Auth.AdminEmails) != 0 {
		t.Errorf("AdminEmails = %v, want empty", cfg.Auth.AdminEmails)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("COHORTS_ADDR", ":9000")
	t.Setenv("COHORTS_DB_DRIVER", "sqlite")
	t.Setenv("COHORTS_SQLITE_PATH", "/tmp/declutter.db")
	t.Setenv("COHORTS_TOKEN_TTL", "12h")
	t.Setenv("COHORTS_REMINDER_HOUR", "8")
	t.Setenv("COHORTS_REMINDERS_ENABLED", "false")
	t.Setenv("COHORTS_SMTP_HOST", "smtp.example.com")
	t.Setenv("COHORTS_ADMIN_EMAILS", "coach@example.com, ops@example.com,")
	t.Setenv("COHORTS_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.SQLitePath != "/tmp/declutter.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %v, want 12h", cfg.Auth.TokenTTL)
	}
	if cfg.Reminders.Hour != 8 || cfg.Reminders.Enabled {
		t.Errorf("Reminders = %+v", cfg.Reminders)
	}
	if !cfg.SMTP.Configured() {
		t.Error("SMTP.Configured() = false with host set")
	}
	want := []string{"coach@example.com", "ops@example.com"}
	if len(cfg.Auth.AdminEmails) != len(want) {
		t.Fatalf("AdminEmails = %v, want %v", cfg.Auth.AdminEmails, want)
	}
	for i := range want {
		if cfg.Auth.AdminEmails[i] != want[i] {
			t.Errorf("AdminEmails[%d] = %q, want %q", i, cfg.Auth.AdminEmails[i], want[i])
		}
	}
	if cfg.Server.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v, want 2.5", cfg.Server.RateLimitRPS)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("COHORTS_REMINDER_HOUR", "noon")
	t.Setenv("COHORTS_TOKEN_TTL", "fortnight")
	t.Setenv("COHORTS_REMINDERS_ENABLED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Reminders.Hour != 10 {
		t.Errorf("Reminders.Hour = %d, want default 10", cfg.Reminders.Hour)
	}
	if cfg.Auth.TokenTTL != 30*24*time.Hour {
		t.Errorf("TokenTTL = %v, want default", cfg.Auth.TokenTTL)
	}
	if !cfg.Reminders.Enabled {
		t.Error("Reminders.Enabled = false, want default true")
	}
}
