package domain

import "time"

// AccountLock is a time-bounded restriction preventing an account from authenticating.
type AccountLock struct {
	ID        string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsActive reports whether the lock still applies at the supplied moment.
func (l AccountLock) IsActive(at time.Time) bool {
	return l.ExpiresAt.After(at)
}
