package domain

import "time"

// EntityType enumerates the kinds of resources tokens and records can refer to.
type EntityType string

const (
	EntityTypeAccount     EntityType = "ACCOUNT"
	EntityTypeApplication EntityType = "APPLICATION"
	EntityTypeClient      EntityType = "CLIENT"
	EntityTypeCredentials EntityType = "CREDENTIALS"
)

// Entity is any persisted resource that can be referenced by an idempotent record.
type Entity interface {
	EntityID() string
	EntityType() EntityType
}

// Account is the minimal account aggregate used by authentication flows.
type Account struct {
	ID        string
	Domain    string
	Email     string
	Active    bool
	CreatedAt time.Time
}

// EntityID implements Entity.
func (a Account) EntityID() string { return a.ID }

// EntityType implements Entity.
func (a Account) EntityType() EntityType { return EntityTypeAccount }

// Credentials binds a login identifier and password hash to an account.
type Credentials struct {
	ID           string
	AccountID    string
	Identifier   string
	PasswordHash string
	CreatedAt    time.Time
}

// EntityID implements Entity.
func (c Credentials) EntityID() string { return c.ID }

// EntityType implements Entity.
func (c Credentials) EntityType() EntityType { return EntityTypeCredentials }

// RefreshToken represents a persisted refresh token (stored as a hash).
type RefreshToken struct {
	ID         string
	EntityID   string
	EntityType EntityType
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}
