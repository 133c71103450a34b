package config

import (
	"strings"
	"testing"
	"time"
)

// setMemoryEnv sets the minimum environment for the offline provider.
func setMemoryEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "AUTH_URL", "AUTH_API_KEY", "DB_ENABLED", "DB_PASSWORD", "CATALOG_SOURCE",
		"EMAIL_PROVIDER", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("IDENTITY_MODE", "memory")
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
}

func TestLoad_MemoryDefaults(t *testing.T) {
	setMemoryEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Identity.Mode != IdentityMemory {
		t.Errorf("Identity.Mode = %q, want %q", cfg.Identity.Mode, IdentityMemory)
	}
	if cfg.Storage.CatalogSource != CatalogSeed {
		t.Errorf("Storage.CatalogSource = %q, want %q", cfg.Storage.CatalogSource, CatalogSeed)
	}
	if cfg.Database.Enabled {
		t.Error("Database.Enabled = true, want false by default")
	}
	if got := cfg.Server.CallbackURL(); got != "http://127.0.0.1:8765/auth/callback" {
		t.Errorf("CallbackURL() = %q", got)
	}
	if cfg.Identity.ResendCooldown != 60*time.Second {
		t.Errorf("ResendCooldown = %v, want 60s", cfg.Identity.ResendCooldown)
	}
}

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	setMemoryEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	setMemoryEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	t.Setenv("SERVER_IDLE_TIMEOUT", "120s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 45 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 120 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	setMemoryEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Invalid duration should fall back to default
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "gotrue without url",
			env:     map[string]string{"IDENTITY_MODE": "gotrue", "AUTH_API_KEY": "anon"},
			wantErr: "AUTH_URL",
		},
		{
			name:    "gotrue without key",
			env:     map[string]string{"IDENTITY_MODE": "gotrue", "AUTH_URL": "https://x.example.com"},
			wantErr: "AUTH_API_KEY",
		},
		{
			name:    "memory with weak secret",
			env:     map[string]string{"JWT_SECRET": "short"},
			wantErr: "JWT_SECRET must be at least",
		},
		{
			name:    "memory with short secret in production",
			env:     map[string]string{"ENV": "production", "JWT_SECRET": "only-twenty-chars!!!"},
			wantErr: "at least 32",
		},
		{
			name:    "unknown mode",
			env:     map[string]string{"IDENTITY_MODE": "ldap"},
			wantErr: "IDENTITY_MODE",
		},
		{
			name:    "postgres catalog without database",
			env:     map[string]string{"CATALOG_SOURCE": "postgres"},
			wantErr: "DB_ENABLED",
		},
		{
			name:    "database without password",
			env:     map[string]string{"DB_ENABLED": "true"},
			wantErr: "DB_PASSWORD",
		},
		{
			name:    "unknown email provider",
			env:     map[string]string{"EMAIL_PROVIDER": "pigeon"},
			wantErr: "EMAIL_PROVIDER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMemoryEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_GoTrue(t *testing.T) {
	setMemoryEnv(t)
	t.Setenv("IDENTITY_MODE", "GoTrue")
	t.Setenv("AUTH_URL", "https://project.example.com")
	t.Setenv("AUTH_API_KEY", "anon-key")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Identity.Mode != IdentityGoTrue {
		t.Errorf("Identity.Mode = %q, want %q", cfg.Identity.Mode, IdentityGoTrue)
	}
}
