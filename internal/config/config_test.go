package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HIREMOTE_SECRET", "")
	t.Setenv("PORTAL_DB_DRIVER", "")
	t.Setenv("STORAGE_PROVIDER", "")
	t.Setenv("ASSISTANT_PROVIDER", "")
	t.Setenv("VERCEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SecretKey != DefaultSecret {
		t.Errorf("SecretKey = %s, want %s", cfg.SecretKey, DefaultSecret)
	}
	if !cfg.UsingDefaultSecret() {
		t.Error("UsingDefaultSecret() = false, want true")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %s, want sqlite", cfg.Database.Driver)
	}
	if cfg.Storage.Provider != "local" {
		t.Errorf("Provider = %s, want local", cfg.Storage.Provider)
	}
	if cfg.SessionTTL != 10*time.Hour {
		t.Errorf("SessionTTL = %v, want 10h", cfg.SessionTTL)
	}
	if cfg.MaxUploadBytes() != 512*1024*1024 {
		t.Errorf("MaxUploadBytes() = %d", cfg.MaxUploadBytes())
	}
	if cfg.Assistant.Enabled() {
		t.Error("assistant should be disabled by default")
	}
	if cfg.SessionSecure {
		t.Error("SessionSecure should be off by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HIREMOTE_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_BASE_PATH", "/data/uploads")
	t.Setenv("ASSISTANT_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "key-1")
	t.Setenv("MAX_UPLOAD_MB", "64")
	t.Setenv("SESSION_COOKIE_SECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SecretKey != "s3cret" {
		t.Errorf("SecretKey = %s", cfg.SecretKey)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %s", cfg.ServerPort)
	}
	if cfg.Storage.BasePath != "/data/uploads" {
		t.Errorf("BasePath = %s", cfg.Storage.BasePath)
	}
	if cfg.Assistant.Provider != "gemini" {
		t.Errorf("Assistant.Provider = %s, want gemini", cfg.Assistant.Provider)
	}
	if cfg.Assistant.APIKey != "key-1" {
		t.Errorf("Assistant.APIKey = %s", cfg.Assistant.APIKey)
	}
	if cfg.MaxUpload != 64 {
		t.Errorf("MaxUpload = %d", cfg.MaxUpload)
	}
	if !cfg.SessionSecure {
		t.Error("SessionSecure = false, want true")
	}
}

func TestLoad_Vercel(t *testing.T) {
	t.Setenv("VERCEL", "1")
	t.Setenv("PORTAL_DB_DSN", "")
	t.Setenv("STORAGE_BASE_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RuntimeRoot != "/tmp/hiremote" {
		t.Errorf("RuntimeRoot = %s", cfg.RuntimeRoot)
	}
	if cfg.Storage.BasePath != "/tmp/hiremote/storage/uploads" {
		t.Errorf("BasePath = %s", cfg.Storage.BasePath)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("PORTAL_DB_DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Error("期望返回错误，但未返回")
	}
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "s3")
	t.Setenv("AWS_BUCKET", "")

	if _, err := Load(); err == nil {
		t.Error("期望返回错误，但未返回")
	}
}
