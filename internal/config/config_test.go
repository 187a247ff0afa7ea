package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("PUBLIC_ORIGIN", "https://pinpin.example/")
	t.Setenv("DOWNLOAD_RETRY_DELAY", "250ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Server.PublicOrigin != "https://pinpin.example" {
		t.Errorf("Server.PublicOrigin = %v, want trailing slash trimmed", cfg.Server.PublicOrigin)
	}
	if cfg.Download.InitialDelay != 250*time.Millisecond {
		t.Errorf("Download.InitialDelay = %v, want %v", cfg.Download.InitialDelay, 250*time.Millisecond)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Limits.MaxUploadBytes != 100*1024*1024 {
		t.Errorf("Limits.MaxUploadBytes = %d, want 100MB", cfg.Limits.MaxUploadBytes)
	}
	if cfg.Limits.MaxDownloadBytes != 500*1024*1024 {
		t.Errorf("Limits.MaxDownloadBytes = %d, want 500MB", cfg.Limits.MaxDownloadBytes)
	}
	if cfg.Download.MaxRetries != 3 || cfg.Download.InitialDelay != time.Second || cfg.Download.Multiplier != 2 {
		t.Errorf("Download = %+v, want 3 retries from 1s doubling", cfg.Download)
	}
	if cfg.Database.ClickHouse.Enabled() {
		t.Errorf("ClickHouse should be disabled without CLICKHOUSE_HOST")
	}
}

func TestLoadConfigRejectsUnknownBlobBackend(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "ftp")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for unknown blob backend")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt64(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int64
	}{
		{name: "returns value when valid", envValue: "5368709120", want: 5368709120},
		{name: "returns default when invalid", envValue: "lots", want: 42},
		{name: "returns default when not set", envValue: "", want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT64", tt.envValue)
			if got := getEnvAsInt64("TEST_INT64", 42); got != tt.want {
				t.Errorf("getEnvAsInt64() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " https://a.example , ,https://b.example")

	got := getEnvAsList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("getEnvAsList() = %v", got)
	}
	if def := getEnvAsList("TEST_LIST_UNSET", []string{"*"}); len(def) != 1 || def[0] != "*" {
		t.Errorf("getEnvAsList() default = %v", def)
	}
}
