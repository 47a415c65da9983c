package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/infra/logger"
)

// AuthenticationService composes the exchange engine and the account lock gate
// into the authenticate, refresh and logout flows.
type AuthenticationService struct {
	exchanges     *ExchangeService
	locks         *AccountLockService
	generateToken string
	logoutToken   string
	logger        *zap.Logger
}

// NewAuthenticationService fails when basic credentials cannot be exchanged for the configured token type.
func NewAuthenticationService(exchanges *ExchangeService, locks *AccountLockService, cfg config.AuthenticationSettings, logger *zap.Logger) (*AuthenticationService, error) {
	if exchanges == nil || locks == nil {
		return nil, fmt.Errorf("exchange and account lock services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	generate := strings.TrimSpace(cfg.GenerateToken)
	if !exchanges.SupportsExchange(domain.TokenTypeBasic, generate) {
		return nil, fmt.Errorf("%w: %s to %s is not registered, check authentication.generate_token",
			domain.ErrUnknownExchange, domain.TokenTypeBasic, generate)
	}

	return &AuthenticationService{
		exchanges:     exchanges,
		locks:         locks,
		generateToken: generate,
		logoutToken:   strings.TrimSpace(cfg.LogoutToken),
		logger:        logger,
	}, nil
}

// Authenticate exchanges basic credentials and rejects accounts holding an active lock.
// A rejected attempt stays recorded as a successful exchange.
func (s *AuthenticationService) Authenticate(ctx context.Context, request domain.AuthRequest, reqCtx domain.RequestContext) (domain.Tokens, error) {
	tokens, err := s.exchange(ctx, request, domain.TokenTypeBasic, reqCtx)
	if err != nil {
		return domain.Tokens{}, err
	}

	locks, err := s.locks.GetActiveLocksByAccountID(ctx, tokens.EntityID)
	if err != nil {
		s.discard(ctx, tokens)
		return domain.Tokens{}, fmt.Errorf("%w: %w", domain.ErrExchangeFailed, err)
	}
	if len(locks) > 0 {
		logger.With(s.logger, ctx).Info("authentication rejected for locked account",
			zap.String("entity_id", tokens.EntityID),
			zap.Int("active_locks", len(locks)),
		)
		s.discard(ctx, tokens)
		return domain.Tokens{}, domain.NewAccountLockedError(tokens.EntityID)
	}

	return tokens, nil
}

// Refresh exchanges a refresh token for the configured token type. Locks are not re-checked.
func (s *AuthenticationService) Refresh(ctx context.Context, request domain.AuthRequest, reqCtx domain.RequestContext) (domain.Tokens, error) {
	return s.exchange(ctx, request, domain.TokenTypeRefresh, reqCtx)
}

// Logout revokes the token carried by request using the configured logout token type.
func (s *AuthenticationService) Logout(ctx context.Context, request domain.AuthRequest) (domain.Tokens, error) {
	return s.exchanges.Delete(ctx, request, s.logoutToken)
}

func (s *AuthenticationService) exchange(ctx context.Context, request domain.AuthRequest, from string, reqCtx domain.RequestContext) (domain.Tokens, error) {
	if !request.Restrictions.IsEmpty() {
		return s.exchanges.ExchangeWithRestrictions(ctx, request, from, s.generateToken, *request.Restrictions, reqCtx)
	}
	return s.exchanges.Exchange(ctx, request, from, s.generateToken, reqCtx)
}

// discard drops what a rejected authentication issued: the refresh token, or
// the pending code when one-time passwords are generated.
func (s *AuthenticationService) discard(ctx context.Context, tokens domain.Tokens) {
	request, tokenType := domain.AuthRequest{Token: tokens.RefreshToken}, domain.TokenTypeRefresh
	if tokens.Type == domain.TokenTypeOTP {
		request.Token, tokenType = tokens.Token, domain.TokenTypeOTP
	}
	if request.Token == "" {
		return
	}
	if _, err := s.exchanges.Delete(context.WithoutCancel(ctx), request, tokenType); err != nil {
		logger.With(s.logger, ctx).Warn("failed to discard tokens of rejected authentication",
			zap.String("entity_id", tokens.EntityID), zap.Error(err))
	}
}
