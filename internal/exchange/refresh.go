package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/security"
	"github.com/arklim/iam-exchange/internal/repository"
)

// RefreshToAccessToken consumes a refresh token and issues a new token pair.
// The presented refresh token is deleted before new tokens are issued, so each refresh token is single use.
type RefreshToAccessToken struct {
	refreshTokens port.RefreshTokenRepository
	accounts      port.AccountRepository
	tokens        *AccessTokenProvider
	now           func() time.Time
}

// NewRefreshToAccessToken constructs the refresh → accessToken exchange.
func NewRefreshToAccessToken(
	refreshTokens port.RefreshTokenRepository,
	accounts port.AccountRepository,
	tokens *AccessTokenProvider,
) *RefreshToAccessToken {
	return &RefreshToAccessToken{
		refreshTokens: refreshTokens,
		accounts:      accounts,
		tokens:        tokens,
		now:           time.Now,
	}
}

// Pair implements port.Exchange.
func (e *RefreshToAccessToken) Pair() domain.ExchangePair {
	return domain.NewExchangePair(domain.TokenTypeRefresh, domain.TokenTypeAccessToken)
}

// Exchange implements port.Exchange.
func (e *RefreshToAccessToken) Exchange(ctx context.Context, request domain.AuthRequest) (domain.ExchangeResult, error) {
	return e.exchange(ctx, request, request.Restrictions)
}

// ExchangeWithRestrictions implements port.RestrictedExchange.
func (e *RefreshToAccessToken) ExchangeWithRestrictions(ctx context.Context, request domain.AuthRequest, restrictions domain.TokenRestrictions) (domain.ExchangeResult, error) {
	return e.exchange(ctx, request, &restrictions)
}

func (e *RefreshToAccessToken) exchange(ctx context.Context, request domain.AuthRequest, restrictions *domain.TokenRestrictions) (domain.ExchangeResult, error) {
	token := strings.TrimSpace(request.Token)
	if token == "" {
		return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "refresh token is required")), nil
	}

	stored, err := e.refreshTokens.GetByHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid refresh token")), nil
		}
		return domain.ExchangeResult{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	// Losing the delete race to a concurrent refresh means the token was already consumed.
	if err := e.refreshTokens.Delete(ctx, stored.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid refresh token")), nil
		}
		return domain.ExchangeResult{}, fmt.Errorf("delete refresh token: %w", err)
	}

	if stored.IsExpired(e.now()) {
		return domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodeExpiredToken,
			"refresh token has expired", stored.EntityType, stored.EntityID)), nil
	}

	if stored.EntityType == domain.EntityTypeAccount {
		account, err := e.accounts.GetByID(ctx, stored.EntityID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeAccountNotFound,
					fmt.Sprintf("could not find account %s", stored.EntityID))), nil
			}
			return domain.ExchangeResult{}, fmt.Errorf("lookup account: %w", err)
		}
		if !account.Active {
			return domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodeAccountInactive,
				"account is not active", domain.EntityTypeAccount, account.ID)), nil
		}
	}

	tokens, err := e.tokens.Generate(ctx, stored.EntityType, stored.EntityID, restrictions)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	return domain.Succeeded(tokens), nil
}

// RefreshTokenProvider deletes refresh tokens, used to end a session held by a refresh token.
type RefreshTokenProvider struct {
	refreshTokens port.RefreshTokenRepository
}

// NewRefreshTokenProvider constructs a RefreshTokenProvider.
func NewRefreshTokenProvider(refreshTokens port.RefreshTokenRepository) *RefreshTokenProvider {
	return &RefreshTokenProvider{refreshTokens: refreshTokens}
}

// TokenType implements port.AuthProvider.
func (p *RefreshTokenProvider) TokenType() string {
	return domain.TokenTypeRefresh
}

// Delete implements port.AuthProvider.
func (p *RefreshTokenProvider) Delete(ctx context.Context, request domain.AuthRequest) (domain.Tokens, error) {
	token := strings.TrimSpace(request.Token)
	if token == "" {
		return domain.Tokens{}, domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "refresh token is required")
	}

	stored, err := p.refreshTokens.GetByHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Tokens{}, domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid refresh token")
		}
		return domain.Tokens{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	if err := p.refreshTokens.Delete(ctx, stored.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.Tokens{}, fmt.Errorf("delete refresh token: %w", err)
	}

	return domain.Tokens{
		Token:      token,
		Type:       domain.TokenTypeRefresh,
		EntityType: stored.EntityType,
		EntityID:   stored.EntityID,
		IssuedAt:   stored.CreatedAt,
		ExpiresAt:  stored.ExpiresAt,
	}, nil
}

var (
	_ port.RestrictedExchange = (*RefreshToAccessToken)(nil)
	_ port.AuthProvider       = (*RefreshTokenProvider)(nil)
)
