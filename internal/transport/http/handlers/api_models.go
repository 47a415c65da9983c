package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// RestrictionsPayload narrows the permissions and scopes of issued tokens.
type RestrictionsPayload struct {
	Permissions []string `json:"permissions"`
	Scopes      []string `json:"scopes"`
}

func (p *RestrictionsPayload) toDomain() *domain.TokenRestrictions {
	if p == nil {
		return nil
	}
	return &domain.TokenRestrictions{Permissions: p.Permissions, Scopes: p.Scopes}
}

// AuthenticateRequest carries password credentials. An "Authorization: Basic" header may be used instead.
type AuthenticateRequest struct {
	Identifier        string               `json:"identifier"`
	Password          string               `json:"password"`
	ExternalSessionID string               `json:"external_session_id"`
	Restrictions      *RestrictionsPayload `json:"restrictions,omitempty"`
}

// RefreshRequest represents the payload to refresh an access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ExchangeRequest is the generic payload of the exchange endpoint.
type ExchangeRequest struct {
	Identifier   string               `json:"identifier"`
	Password     string               `json:"password"`
	Token        string               `json:"token"`
	Restrictions *RestrictionsPayload `json:"restrictions,omitempty"`
}

// TokenResponse describes tokens issued by an exchange.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AccountCreateRequest defines the payload for account creation.
type AccountCreateRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Domain   string `json:"domain"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Domain    string    `json:"domain,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// IdempotencyConflictResponse points the caller at the entity an earlier request with the same key produced.
type IdempotencyConflictResponse struct {
	Error      string           `json:"error"`
	Code       string           `json:"code"`
	EntityType string           `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Account    *AccountResponse `json:"account,omitempty"`
	TraceID    string           `json:"trace_id,omitempty"`
}

// ExchangeAttemptPayload is one audit row.
type ExchangeAttemptPayload struct {
	ID                string    `json:"id"`
	ExchangeFrom      string    `json:"exchange_from"`
	ExchangeTo        string    `json:"exchange_to"`
	Successful        bool      `json:"successful"`
	ClientID          string    `json:"client_id,omitempty"`
	SourceIP          string    `json:"source_ip,omitempty"`
	DeviceID          string    `json:"device_id,omitempty"`
	ExternalSessionID string    `json:"external_session_id,omitempty"`
	UserAgent         string    `json:"user_agent,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ExchangeAttemptListResponse lists attempts newest first.
type ExchangeAttemptListResponse struct {
	EntityID string                   `json:"entity_id"`
	Attempts []ExchangeAttemptPayload `json:"attempts"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newTokenResponse(tokens domain.Tokens, now time.Time) TokenResponse {
	expiresIn := 0
	if !tokens.ExpiresAt.IsZero() {
		if remaining := tokens.ExpiresAt.Sub(now); remaining > 0 {
			expiresIn = int(remaining.Seconds())
		}
	}
	return TokenResponse{
		AccessToken:  tokens.Token,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.Type,
		EntityType:   string(tokens.EntityType),
		EntityID:     tokens.EntityID,
		ExpiresIn:    expiresIn,
		ExpiresAt:    tokens.ExpiresAt,
	}
}

func newAccountResponse(account domain.Account) AccountResponse {
	return AccountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Domain:    account.Domain,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

func newExchangeAttemptPayload(attempt domain.ExchangeAttempt) ExchangeAttemptPayload {
	return ExchangeAttemptPayload{
		ID:                attempt.ID,
		ExchangeFrom:      attempt.ExchangeFrom,
		ExchangeTo:        attempt.ExchangeTo,
		Successful:        attempt.Successful,
		ClientID:          attempt.ClientID,
		SourceIP:          attempt.SourceIP,
		DeviceID:          attempt.DeviceID,
		ExternalSessionID: attempt.ExternalSessionID,
		UserAgent:         attempt.UserAgent,
		CreatedAt:         attempt.CreatedAt,
	}
}
