package domain

import "time"

// OneTimePassword is a short-lived code issued to an account by the basic → otp exchange.
// Only the hash of the code is stored.
type OneTimePassword struct {
	ID        string
	AccountID string
	CodeHash  string
	Attempts  int
	ClientID  string
	DeviceID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the code can no longer be redeemed at the supplied moment.
func (o OneTimePassword) IsExpired(at time.Time) bool {
	return !o.ExpiresAt.After(at)
}

// OTPGeneratedMessage is published on ChannelOTP so a delivery channel can send the code.
type OTPGeneratedMessage struct {
	PasswordID string
	AccountID  string
	Code       string
	ExpiresAt  time.Time
}
