package domain

import "time"

// ExchangeAttempt is an append-only audit row for one exchange invocation.
type ExchangeAttempt struct {
	ID                string
	EntityID          string
	ExchangeFrom      string
	ExchangeTo        string
	Successful        bool
	ClientID          string
	SourceIP          string
	DeviceID          string
	ExternalSessionID string
	UserAgent         string
	CreatedAt         time.Time
}

// ExchangeAttemptsQuery filters attempts for a single entity.
//
// Supported shapes: entity only; entity and FromTimestamp; entity, FromTimestamp and FromExchange.
type ExchangeAttemptsQuery struct {
	EntityID      string
	FromTimestamp *time.Time
	FromExchange  string
}
