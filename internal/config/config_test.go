package config

import "testing"

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "host=localhost dbname=ib")
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("AUTHZ_MODE", "")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("port=%q", cfg.ServerPort)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Fatalf("level=%q format=%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.AuthzMode != "enforce" {
		t.Fatalf("authz=%q", cfg.AuthzMode)
	}
	if cfg.AdminUsername != "admin@ib.local" {
		t.Fatalf("admin=%q", cfg.AdminUsername)
	}
}

func TestFromEnv_Required(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("SESSION_SECRET", "secret")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for missing DB_DSN")
	}

	t.Setenv("DB_DSN", "host=localhost")
	t.Setenv("SESSION_SECRET", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for missing SESSION_SECRET")
	}
}

func TestFromEnv_InvalidAuthzMode(t *testing.T) {
	t.Setenv("DB_DSN", "host=localhost")
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("AUTHZ_MODE", "disabled")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error")
	}

	t.Setenv("AUTHZ_MODE", "Shadow")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.AuthzMode != "shadow" {
		t.Fatalf("authz=%q", cfg.AuthzMode)
	}
}
