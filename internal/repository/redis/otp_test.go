package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/repository"
)

func TestOTPRepository_SaveFetchAndDelete(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOTPRepository(client, "otp")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	otp := domain.OneTimePassword{
		ID:        "otp-1",
		AccountID: "account-1",
		CodeHash:  "hash",
		ClientID:  "web",
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	if err := repo.Save(ctx, otp); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	remaining := server.TTL("otp:otp-1")
	if remaining <= 5*time.Minute || remaining > 5*time.Minute+DefaultOTPGrace {
		t.Fatalf("expected ttl to cover expiry plus grace, got %v", remaining)
	}

	stored, err := repo.GetByID(ctx, "otp-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if stored.AccountID != "account-1" || stored.CodeHash != "hash" || stored.ClientID != "web" || !stored.ExpiresAt.Equal(otp.ExpiresAt) {
		t.Fatalf("unexpected otp %+v", stored)
	}

	if err := repo.Delete(ctx, "otp-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.GetByID(ctx, "otp-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "otp-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestOTPRepository_IncrementAttempts(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewOTPRepository(client, "otp")
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.Save(ctx, domain.OneTimePassword{ID: "otp-2", AccountID: "a", CodeHash: "h", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	for want := 1; want <= 2; want++ {
		got, err := repo.IncrementAttempts(ctx, "otp-2")
		if err != nil || got != want {
			t.Fatalf("IncrementAttempts = %d, %v; want %d", got, err, want)
		}
	}

	if _, err := repo.IncrementAttempts(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown otp, got %v", err)
	}
	if server.Exists("otp:missing") {
		t.Fatalf("incrementing an unknown otp must not create a key")
	}
}

func TestOTPRepository_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewOTPRepository(client, "")
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name string
		otp  domain.OneTimePassword
	}{
		{name: "missing id", otp: domain.OneTimePassword{AccountID: "a", CodeHash: "h", ExpiresAt: now.Add(time.Minute)}},
		{name: "missing account", otp: domain.OneTimePassword{ID: "x", CodeHash: "h", ExpiresAt: now.Add(time.Minute)}},
		{name: "missing hash", otp: domain.OneTimePassword{ID: "x", AccountID: "a", ExpiresAt: now.Add(time.Minute)}},
		{name: "past grace", otp: domain.OneTimePassword{ID: "x", AccountID: "a", CodeHash: "h", ExpiresAt: now.Add(-2 * DefaultOTPGrace)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Save(ctx, tt.otp); err == nil {
				t.Fatalf("expected Save to fail")
			}
		})
	}
}
