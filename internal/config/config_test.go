package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		errorString string
	}{
		{
			name: "valid sqlite backend config",
			config: Config{
				Port:            "8080",
				DataBackend:     "sqlite",
				SQLiteDBPath:    "./test.db",
				Timezone:        "UTC",
				CacheTTL:        5 * time.Minute,
				CacheMaxEntries: 100,
			},
			wantErr: false,
		},
		{
			name: "valid memory backend config",
			config: Config{
				Port:            "8080",
				DataBackend:     "memory",
				Timezone:        "Europe/Rome",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr: false,
		},
		{
			name: "invalid port - non-numeric",
			config: Config{
				Port:            "abc",
				DataBackend:     "memory",
				Timezone:        "UTC",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name: "invalid port - out of range high",
			config: Config{
				Port:            "70000",
				DataBackend:     "memory",
				Timezone:        "UTC",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name: "invalid data backend",
			config: Config{
				Port:            "8080",
				DataBackend:     "invalid",
				Timezone:        "UTC",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "invalid data backend 'invalid': must be one of [memory sqlite]",
		},
		{
			name: "sqlite backend missing database path",
			config: Config{
				Port:            "8080",
				DataBackend:     "sqlite",
				SQLiteDBPath:    "",
				Timezone:        "UTC",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "SQLite database path cannot be empty when using sqlite backend",
		},
		{
			name: "invalid timezone",
			config: Config{
				Port:            "8080",
				DataBackend:     "memory",
				Timezone:        "Mars/Olympus",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "invalid timezone 'Mars/Olympus'",
		},
		{
			name: "cache TTL too small",
			config: Config{
				Port:            "8080",
				DataBackend:     "memory",
				Timezone:        "UTC",
				CacheTTL:        time.Millisecond,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "invalid cache TTL",
		},
		{
			name: "cache max entries too small",
			config: Config{
				Port:            "8080",
				DataBackend:     "memory",
				Timezone:        "UTC",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 0,
			},
			wantErr:     true,
			errorString: "invalid cache max entries 0",
		},
		{
			name: "multiple errors collected",
			config: Config{
				Port:            "abc",
				DataBackend:     "invalid",
				Timezone:        "UTC",
				CacheTTL:        time.Minute,
				CacheMaxEntries: 10,
			},
			wantErr:     true,
			errorString: "invalid data backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.config.DataBackend == "sqlite" && tt.config.SQLiteDBPath != "" {
				tt.config.SQLiteDBPath = filepath.Join(t.TempDir(), "test.db")
			}
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errorString) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.errorString)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("default port = %s, want 8080", cfg.Port)
	}
	if cfg.DataBackend != "sqlite" {
		t.Errorf("default backend = %s, want sqlite", cfg.DataBackend)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("default cache TTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.CacheMaxEntries != 100 {
		t.Errorf("default cache max entries = %d, want 100", cfg.CacheMaxEntries)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("CACHE_MAX_ENTRIES", "7")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.DataBackend != "memory" {
		t.Errorf("DataBackend = %s, want memory", cfg.DataBackend)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %s, want UTC", cfg.Timezone)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.CacheMaxEntries != 7 {
		t.Errorf("CacheMaxEntries = %d, want 7", cfg.CacheMaxEntries)
	}
	if cfg.Location().String() != "UTC" {
		t.Errorf("Location() = %s, want UTC", cfg.Location())
	}
}
