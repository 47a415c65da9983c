package domain

import (
	"strings"
	"time"
)

// Well-known token types handled by the exchange engine.
const (
	TokenTypeBasic       = "basic"
	TokenTypeRefresh     = "refresh"
	TokenTypeAccessToken = "accessToken"
	TokenTypeOTP         = "otp"
	TokenTypeAPIKey      = "apiKey"
)

// ExchangePair identifies a (from, to) token type conversion.
type ExchangePair struct {
	From string
	To   string
}

// NewExchangePair normalises whitespace around the supplied token types.
func NewExchangePair(from, to string) ExchangePair {
	return ExchangePair{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}
}

// String renders the pair as "from-to".
func (p ExchangePair) String() string {
	return p.From + "-" + p.To
}

// TokenRestrictions narrows the permissions and scopes embedded into issued tokens.
type TokenRestrictions struct {
	Permissions []string
	Scopes      []string
}

// IsEmpty reports whether the restrictions carry no constraints.
func (r *TokenRestrictions) IsEmpty() bool {
	return r == nil || (len(r.Permissions) == 0 && len(r.Scopes) == 0)
}

// AuthRequest carries the proof of identity presented to an exchange.
type AuthRequest struct {
	Identifier        string
	Password          string
	Token             string
	ClientID          string
	DeviceID          string
	ExternalSessionID string
	SourceIP          string
	UserAgent         string
	Restrictions      *TokenRestrictions
}

// RequestContext describes the transport-level caller of an exchange.
type RequestContext struct {
	ClientID string
	Source   string
}

// Tokens is the output of a successful exchange.
type Tokens struct {
	Token        string
	RefreshToken string
	Type         string
	EntityType   EntityType
	EntityID     string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// ExchangeResult is either a set of tokens or an expected authentication failure.
type ExchangeResult struct {
	tokens *Tokens
	err    error
}

// Succeeded wraps tokens as a successful exchange result.
func Succeeded(tokens Tokens) ExchangeResult {
	return ExchangeResult{tokens: &tokens}
}

// Failed wraps an expected failure as an exchange result.
func Failed(err error) ExchangeResult {
	return ExchangeResult{err: err}
}

// IsSuccess reports whether the result carries tokens.
func (r ExchangeResult) IsSuccess() bool {
	return r.err == nil && r.tokens != nil
}

// Tokens returns the issued tokens; ok is false for failed results.
func (r ExchangeResult) Tokens() (Tokens, bool) {
	if r.tokens == nil {
		return Tokens{}, false
	}
	return *r.tokens, true
}

// Err returns the failure carried by the result, if any.
func (r ExchangeResult) Err() error {
	return r.err
}
