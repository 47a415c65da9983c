package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Driver != StorageDriverPostgres {
		t.Fatalf("expected postgres driver by default, got %q", cfg.Storage.Driver)
	}
	if cfg.Authentication.GenerateToken != "accessToken" || cfg.Authentication.LogoutToken != "accessToken" {
		t.Fatalf("unexpected authentication defaults: %+v", cfg.Authentication)
	}
	if cfg.Idempotency.WriteTimeout != 5*time.Second {
		t.Fatalf("expected 5s idempotency write timeout, got %v", cfg.Idempotency.WriteTimeout)
	}
	if cfg.JWT.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected 15m access token ttl, got %v", cfg.JWT.AccessTokenTTL)
	}
	if cfg.Authentication.LockRetention != 720*time.Hour {
		t.Fatalf("expected 720h lock retention, got %v", cfg.Authentication.LockRetention)
	}
	if cfg.OTP.Lifetime != 5*time.Minute || cfg.OTP.Length != 6 || cfg.OTP.MaxAttempts != 5 {
		t.Fatalf("unexpected otp defaults: %+v", cfg.OTP)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("IAM_STORAGE_DRIVER", "memory")
	t.Setenv("IAM_AUTHENTICATION_GENERATE_TOKEN", "otp")
	t.Setenv("IAM_REDIS_ACCOUNT_LOCK_PREFIX", "locks")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Driver != StorageDriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Authentication.GenerateToken != "otp" {
		t.Fatalf("expected otp generate token, got %q", cfg.Authentication.GenerateToken)
	}
	if cfg.Redis.AccountLockPrefix != "locks" {
		t.Fatalf("expected locks prefix, got %q", cfg.Redis.AccountLockPrefix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "unknown driver", mutate: func(c *AppConfig) { c.Storage.Driver = "mongo" }, wantErr: true},
		{name: "missing generate token", mutate: func(c *AppConfig) { c.Authentication.GenerateToken = " " }, wantErr: true},
		{name: "short production secret", mutate: func(c *AppConfig) {
			c.App.Env = "production"
			c.JWT.Secret = "short"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &AppConfig{
				Storage:        StorageSettings{Driver: StorageDriverMemory},
				Authentication: AuthenticationSettings{GenerateToken: "accessToken", LogoutToken: "accessToken"},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
