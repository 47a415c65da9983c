package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/security"
)

const (
	refreshTokenBytes = 32
	revocationLogout  = "logout"
)

// AccessTokenProvider issues signed access tokens together with a rotating refresh token.
type AccessTokenProvider struct {
	issuer        *security.JWTIssuer
	refreshTokens port.RefreshTokenRepository
	revocations   port.RevocationStore
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewAccessTokenProvider constructs an AccessTokenProvider. A non-positive refreshTTL disables refresh tokens.
func NewAccessTokenProvider(
	issuer *security.JWTIssuer,
	refreshTokens port.RefreshTokenRepository,
	revocations port.RevocationStore,
	refreshTTL time.Duration,
) *AccessTokenProvider {
	return &AccessTokenProvider{
		issuer:        issuer,
		refreshTokens: refreshTokens,
		revocations:   revocations,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// TokenType implements port.AuthProvider.
func (p *AccessTokenProvider) TokenType() string {
	return domain.TokenTypeAccessToken
}

// Generate issues an access token for the entity and persists a fresh refresh token.
func (p *AccessTokenProvider) Generate(ctx context.Context, entityType domain.EntityType, entityID string, restrictions *domain.TokenRestrictions) (domain.Tokens, error) {
	if strings.TrimSpace(entityID) == "" {
		return domain.Tokens{}, fmt.Errorf("entity id is required")
	}

	issued, err := p.issuer.Issue(entityID, entityType, restrictions)
	if err != nil {
		return domain.Tokens{}, err
	}

	tokens := domain.Tokens{
		Token:      issued.Token,
		Type:       domain.TokenTypeAccessToken,
		EntityType: entityType,
		EntityID:   entityID,
		IssuedAt:   issued.IssuedAt,
		ExpiresAt:  issued.ExpiresAt,
	}

	if p.refreshTTL <= 0 || p.refreshTokens == nil {
		return tokens, nil
	}

	refresh, err := security.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := p.now().UTC()
	record := domain.RefreshToken{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		TokenHash:  security.HashToken(refresh),
		CreatedAt:  now,
		ExpiresAt:  now.Add(p.refreshTTL),
	}
	if err := p.refreshTokens.Create(ctx, record); err != nil {
		return domain.Tokens{}, fmt.Errorf("store refresh token: %w", err)
	}

	tokens.RefreshToken = refresh
	return tokens, nil
}

// Verify parses the access token and rejects revoked ones.
func (p *AccessTokenProvider) Verify(ctx context.Context, token string) (*security.AccessClaims, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}

	if p.revocations != nil {
		revoked, _, err := p.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, domain.NewEntityAuthorizationError(domain.ErrorCodeInvalidToken, "token has been revoked",
				domain.EntityType(claims.EntityType), claims.Subject)
		}
	}

	return claims, nil
}

// Delete revokes the access token carried in request.Token until it would have expired.
func (p *AccessTokenProvider) Delete(ctx context.Context, request domain.AuthRequest) (domain.Tokens, error) {
	claims, err := p.parse(request.Token)
	if err != nil {
		return domain.Tokens{}, err
	}
	if p.revocations == nil {
		return domain.Tokens{}, fmt.Errorf("revocation store is not configured")
	}

	expiresAt := claims.ExpiresAt.Time
	if err := p.revocations.MarkRevoked(ctx, claims.ID, revocationLogout, expiresAt.Sub(p.now())); err != nil {
		return domain.Tokens{}, fmt.Errorf("revoke token: %w", err)
	}

	tokens := domain.Tokens{
		Token:      request.Token,
		Type:       domain.TokenTypeAccessToken,
		EntityType: domain.EntityType(claims.EntityType),
		EntityID:   claims.Subject,
		ExpiresAt:  expiresAt,
	}
	if claims.IssuedAt != nil {
		tokens.IssuedAt = claims.IssuedAt.Time
	}
	return tokens, nil
}

func (p *AccessTokenProvider) parse(token string) (*security.AccessClaims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "access token is required")
	}

	claims, err := p.issuer.Parse(token)
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return nil, domain.NewAuthorizationError(domain.ErrorCodeExpiredToken, "access token has expired")
	case err != nil:
		return nil, domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid access token")
	}
	return claims, nil
}

var _ port.AuthProvider = (*AccessTokenProvider)(nil)
