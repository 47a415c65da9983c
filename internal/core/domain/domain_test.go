package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAuthorizationErrorMatching(t *testing.T) {
	locked := NewAccountLockedError("42")
	if !errors.Is(locked, ErrAuthorization) {
		t.Fatalf("locked error should match ErrAuthorization")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", locked), ErrAccountLocked) {
		t.Fatalf("wrapped locked error should match ErrAccountLocked")
	}
	if !locked.HasEntity() || locked.EntityType != EntityTypeAccount || locked.EntityID != "42" {
		t.Fatalf("unexpected attribution: %+v", locked)
	}

	plain := NewAuthorizationError(ErrorCodeInvalidToken, "")
	if errors.Is(plain, ErrAccountLocked) {
		t.Fatalf("invalid token error must not match ErrAccountLocked")
	}
	if plain.HasEntity() {
		t.Fatalf("unattributed error reports an entity")
	}
	if plain.Error() != "authorization failed (INVALID_TOKEN)" {
		t.Fatalf("unexpected message %q", plain.Error())
	}
}

func TestIdempotencyConflictError(t *testing.T) {
	err := error(&IdempotencyConflictError{Record: IdempotentRecord{
		IdempotentKey: "k-1",
		EntityType:    EntityTypeAccount,
		EntityID:      "acc-1",
	}})

	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict match")
	}
	var conflict *IdempotencyConflictError
	if !errors.As(fmt.Errorf("create: %w", err), &conflict) || conflict.Record.EntityID != "acc-1" {
		t.Fatalf("expected conflict carrying the prior entity, got %v", conflict)
	}
}

func TestAccountLockIsActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lock := AccountLock{ExpiresAt: now.Add(5 * time.Minute)}

	if !lock.IsActive(now) {
		t.Fatalf("lock expiring in the future should be active")
	}
	if lock.IsActive(now.Add(5 * time.Minute)) {
		t.Fatalf("lock should be inactive at its expiry")
	}
}

func TestExchangeResult(t *testing.T) {
	ok := Succeeded(Tokens{Token: "t", EntityID: "42"})
	if !ok.IsSuccess() || ok.Err() != nil {
		t.Fatalf("expected success result")
	}
	if tokens, present := ok.Tokens(); !present || tokens.EntityID != "42" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}

	failed := Failed(NewAuthorizationError(ErrorCodeInvalidCredentials, "bad"))
	if failed.IsSuccess() {
		t.Fatalf("failed result reports success")
	}
	if _, present := failed.Tokens(); present {
		t.Fatalf("failed result carries tokens")
	}

	var empty ExchangeResult
	if empty.IsSuccess() || empty.Err() != nil {
		t.Fatalf("zero result should be neither success nor failure")
	}
}

func TestExchangePair(t *testing.T) {
	pair := NewExchangePair(" basic ", "accessToken\n")
	if pair.From != TokenTypeBasic || pair.To != TokenTypeAccessToken {
		t.Fatalf("pair not trimmed: %+v", pair)
	}
	if pair.String() != "basic-accessToken" {
		t.Fatalf("unexpected string %q", pair.String())
	}

	var restrictions *TokenRestrictions
	if !restrictions.IsEmpty() {
		t.Fatalf("nil restrictions should be empty")
	}
}
