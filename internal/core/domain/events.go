package domain

import "time"

// Channels used on the message bus.
const (
	ChannelAuth     = "auth"
	ChannelAccounts = "accounts"
	ChannelOTP      = "otp"
)

// Event types carried inside messages.
const (
	EventTypeExchangeSucceeded = "exchange.succeeded"
	EventTypeExchangeFailed    = "exchange.failed"
	EventTypeEntityCreated     = "entity.created"
	EventTypeOTPGenerated      = "otp.generated"
)

// Message is the envelope handed to the message bus.
type Message struct {
	EventID   string
	EventType string
	EntityID  string
	Timestamp time.Time
	Payload   any
}

// AuthMessage describes the outcome of a single exchange.
type AuthMessage struct {
	ExchangeFrom string
	ExchangeTo   string
	EntityType   EntityType
	EntityID     string
	Successful   bool
	Error        string
	Timestamp    time.Time
}

// ExchangeSucceededMessage builds the success notification for an exchange.
func ExchangeSucceededMessage(pair ExchangePair, tokens Tokens, at time.Time) AuthMessage {
	return AuthMessage{
		ExchangeFrom: pair.From,
		ExchangeTo:   pair.To,
		EntityType:   tokens.EntityType,
		EntityID:     tokens.EntityID,
		Successful:   true,
		Timestamp:    at,
	}
}

// ExchangeFailedMessage builds the failure notification for an exchange.
// Entity attribution is left empty when the failure does not reference an entity.
func ExchangeFailedMessage(pair ExchangePair, entityType EntityType, entityID string, cause error, at time.Time) AuthMessage {
	msg := AuthMessage{
		ExchangeFrom: pair.From,
		ExchangeTo:   pair.To,
		EntityType:   entityType,
		EntityID:     entityID,
		Successful:   false,
		Timestamp:    at,
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	return msg
}

// EntityCreatedMessage announces an entity produced by a creation flow.
type EntityCreatedMessage struct {
	EntityType EntityType
	EntityID   string
	Timestamp  time.Time
}
