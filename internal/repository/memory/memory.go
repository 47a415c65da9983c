// Package memory provides process-local repositories backed by go-cache.
// They are used when storage.driver is "memory" and in tests.
package memory

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = time.Minute

func newCache() *gocache.Cache {
	return gocache.New(gocache.NoExpiration, cleanupInterval)
}

// ttlUntil converts an absolute expiry into a go-cache duration.
// Already elapsed expiries map to the smallest positive TTL so the entry is dropped promptly.
func ttlUntil(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return time.Nanosecond
	}
	return ttl
}

// Repositories groups the in-memory implementations of every storage port.
type Repositories struct {
	ExchangeAttempts  *ExchangeAttemptRepository
	IdempotentRecords *IdempotentRecordRepository
	AccountLocks      *AccountLockRepository
	Accounts          *AccountRepository
	Credentials       *CredentialsRepository
	RefreshTokens     *RefreshTokenRepository
	Revocations       *RevocationStore
	OTPs              *OTPRepository
}

// NewRepositories constructs a fresh set of in-memory repositories.
func NewRepositories() *Repositories {
	return &Repositories{
		ExchangeAttempts:  NewExchangeAttemptRepository(),
		IdempotentRecords: NewIdempotentRecordRepository(),
		AccountLocks:      NewAccountLockRepository(),
		Accounts:          NewAccountRepository(),
		Credentials:       NewCredentialsRepository(),
		RefreshTokens:     NewRefreshTokenRepository(),
		Revocations:       NewRevocationStore(),
		OTPs:              NewOTPRepository(),
	}
}
