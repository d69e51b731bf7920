package config

import (
	"strings"
	"testing"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	// Every missing field must be reported, not just the first.
	for _, want := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "appeals", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestLoad_ReportsMalformedOptionalValues(t *testing.T) {
	for key, val := range map[string]string{
		"APP_ENV":                     "local",
		"APP_PORT":                    "8080",
		"DB_HOST":                     "localhost",
		"DB_PORT":                     "5432",
		"DB_USER":                     "postgres",
		"DB_PASSWORD":                 "x",
		"DB_NAME":                     "appeals",
		"REDIS_HOST":                  "localhost",
		"REDIS_PORT":                  "6379",
		"JWT_SECRET":                  "secret",
		"JWT_REFRESH_TTL":             "720h",
		"LOGIN_RATE_PER_MINUTE":       "10",
		"AUDIT_EXPORT_MAX_CONCURRENT": "2",

		// Optional, but present and malformed: must not fall back silently.
		"AUDIT_RETENTION_DAYS": "abc",
		"JWT_ACCESS_TTL":       "soon",
	} {
		t.Setenv(key, val)
	}

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, want := range []string{"AUDIT_RETENTION_DAYS", "JWT_ACCESS_TTL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "appeals", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Audit.RetentionDays != 180 {
		t.Fatalf("expected 180-day retention default, got %d", c.Audit.RetentionDays)
	}
	if c.Audit.ExportMaxConcurrent != 2 {
		t.Fatalf("expected export concurrency default 2, got %d", c.Audit.ExportMaxConcurrent)
	}
	if c.Auth.LoginRatePerMinute != 10 {
		t.Fatalf("expected login rate default 10, got %d", c.Auth.LoginRatePerMinute)
	}
}
