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
	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/infra/security"
	"github.com/arklim/iam-exchange/internal/repository"
)

const (
	defaultOTPLength   = 6
	defaultOTPLifetime = 5 * time.Minute
)

// OTPProvider issues one-time passwords and hands the code to the bus for delivery.
// The caller receives only the password ID; redeeming it needs "<id>:<code>".
type OTPProvider struct {
	otps        port.OTPRepository
	bus         port.MessageBus
	length      int
	lifetime    time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewOTPProvider constructs an OTPProvider, falling back to a six digit code valid for five minutes.
func NewOTPProvider(otps port.OTPRepository, bus port.MessageBus, cfg config.OTPSettings) *OTPProvider {
	p := &OTPProvider{
		otps:        otps,
		bus:         bus,
		length:      cfg.Length,
		lifetime:    cfg.Lifetime,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
	if p.length <= 0 {
		p.length = defaultOTPLength
	}
	if p.lifetime <= 0 {
		p.lifetime = defaultOTPLifetime
	}
	return p
}

// TokenType implements port.AuthProvider.
func (p *OTPProvider) TokenType() string {
	return domain.TokenTypeOTP
}

// Generate stores a new code for the account and publishes it on the otp channel.
func (p *OTPProvider) Generate(ctx context.Context, account *domain.Account, request domain.AuthRequest) (domain.Tokens, error) {
	code, err := security.GenerateNumericCode(p.length)
	if err != nil {
		return domain.Tokens{}, err
	}

	now := p.now().UTC()
	otp := domain.OneTimePassword{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		CodeHash:  security.HashToken(code),
		ClientID:  request.ClientID,
		DeviceID:  request.DeviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(p.lifetime),
	}
	if err := p.otps.Save(ctx, otp); err != nil {
		return domain.Tokens{}, fmt.Errorf("store otp: %w", err)
	}

	if p.bus != nil {
		message := domain.Message{
			EventID:   uuid.NewString(),
			EventType: domain.EventTypeOTPGenerated,
			EntityID:  account.ID,
			Timestamp: now,
			Payload: domain.OTPGeneratedMessage{
				PasswordID: otp.ID,
				AccountID:  account.ID,
				Code:       code,
				ExpiresAt:  otp.ExpiresAt,
			},
		}
		if err := p.bus.Publish(ctx, domain.ChannelOTP, message); err != nil {
			// Drop codes that cannot be delivered.
			_ = p.otps.Delete(context.WithoutCancel(ctx), otp.ID)
			return domain.Tokens{}, fmt.Errorf("publish otp: %w", err)
		}
	}

	return domain.Tokens{
		Token:      otp.ID,
		Type:       domain.TokenTypeOTP,
		EntityType: domain.EntityTypeAccount,
		EntityID:   account.ID,
		IssuedAt:   otp.CreatedAt,
		ExpiresAt:  otp.ExpiresAt,
	}, nil
}

// Delete removes a pending code. The token may be the password ID alone or "<id>:<code>".
func (p *OTPProvider) Delete(ctx context.Context, request domain.AuthRequest) (domain.Tokens, error) {
	id, _, _ := strings.Cut(strings.TrimSpace(request.Token), ":")
	if id == "" {
		return domain.Tokens{}, domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "otp id is required")
	}

	otp, err := p.otps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Tokens{}, domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid otp id")
		}
		return domain.Tokens{}, fmt.Errorf("lookup otp: %w", err)
	}
	if err := p.otps.Delete(ctx, otp.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.Tokens{}, fmt.Errorf("delete otp: %w", err)
	}

	return domain.Tokens{
		Token:      otp.ID,
		Type:       domain.TokenTypeOTP,
		EntityType: domain.EntityTypeAccount,
		EntityID:   otp.AccountID,
		IssuedAt:   otp.CreatedAt,
		ExpiresAt:  otp.ExpiresAt,
	}, nil
}

// BasicToOTP verifies basic credentials and issues a one-time password instead of a token.
type BasicToOTP struct {
	verifier basicVerifier
	otps     *OTPProvider
}

// NewBasicToOTP constructs the basic → otp exchange.
func NewBasicToOTP(
	credentials port.CredentialsRepository,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	otps *OTPProvider,
) *BasicToOTP {
	return &BasicToOTP{
		verifier: basicVerifier{credentials: credentials, accounts: accounts, hasher: hasher},
		otps:     otps,
	}
}

// Pair implements port.Exchange.
func (e *BasicToOTP) Pair() domain.ExchangePair {
	return domain.NewExchangePair(domain.TokenTypeBasic, domain.TokenTypeOTP)
}

// Exchange implements port.Exchange.
func (e *BasicToOTP) Exchange(ctx context.Context, request domain.AuthRequest) (domain.ExchangeResult, error) {
	account, failure, err := e.verifier.authenticate(ctx, request)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	if failure != nil {
		return domain.Failed(failure), nil
	}

	tokens, err := e.otps.Generate(ctx, account, request)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	return domain.Succeeded(tokens), nil
}

// OTPToAccessToken redeems "<id>:<code>" for an access token. Codes are single use,
// and wrong guesses count towards the attempt limit of the code.
type OTPToAccessToken struct {
	otps     port.OTPRepository
	accounts port.AccountRepository
	tokens   *AccessTokenProvider
	limit    int
	now      func() time.Time
}

// NewOTPToAccessToken constructs the otp → accessToken exchange. A non-positive maxAttempts disables the limit.
func NewOTPToAccessToken(
	otps port.OTPRepository,
	accounts port.AccountRepository,
	tokens *AccessTokenProvider,
	maxAttempts int,
) *OTPToAccessToken {
	return &OTPToAccessToken{
		otps:     otps,
		accounts: accounts,
		tokens:   tokens,
		limit:    maxAttempts,
		now:      time.Now,
	}
}

// Pair implements port.Exchange.
func (e *OTPToAccessToken) Pair() domain.ExchangePair {
	return domain.NewExchangePair(domain.TokenTypeOTP, domain.TokenTypeAccessToken)
}

// Exchange implements port.Exchange.
func (e *OTPToAccessToken) Exchange(ctx context.Context, request domain.AuthRequest) (domain.ExchangeResult, error) {
	return e.exchange(ctx, request, request.Restrictions)
}

// ExchangeWithRestrictions implements port.RestrictedExchange.
func (e *OTPToAccessToken) ExchangeWithRestrictions(ctx context.Context, request domain.AuthRequest, restrictions domain.TokenRestrictions) (domain.ExchangeResult, error) {
	return e.exchange(ctx, request, &restrictions)
}

func (e *OTPToAccessToken) exchange(ctx context.Context, request domain.AuthRequest, restrictions *domain.TokenRestrictions) (domain.ExchangeResult, error) {
	id, code, found := strings.Cut(strings.TrimSpace(request.Token), ":")
	id, code = strings.TrimSpace(id), strings.TrimSpace(code)
	if !found || id == "" || code == "" {
		return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidAuthorizationFormat,
			"invalid otp token format")), nil
	}

	otp, err := e.otps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid otp id")), nil
		}
		return domain.ExchangeResult{}, fmt.Errorf("lookup otp: %w", err)
	}

	if otp.IsExpired(e.now()) {
		return domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodeExpiredToken,
			"otp has expired", domain.EntityTypeAccount, otp.AccountID)), nil
	}
	if e.limit > 0 && otp.Attempts >= e.limit {
		return domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodeInvalidToken,
			"otp attempt limit reached", domain.EntityTypeAccount, otp.AccountID)), nil
	}

	if !security.MatchesTokenHash(code, otp.CodeHash) {
		if _, err := e.otps.IncrementAttempts(ctx, otp.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return domain.ExchangeResult{}, fmt.Errorf("count otp attempt: %w", err)
		}
		return domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodePasswordsDoNotMatch,
			"otp values did not match", domain.EntityTypeAccount, otp.AccountID)), nil
	}

	// Losing the delete race to a concurrent redemption means the code was already used.
	if err := e.otps.Delete(ctx, otp.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "invalid otp id")), nil
		}
		return domain.ExchangeResult{}, fmt.Errorf("delete otp: %w", err)
	}

	account, err := e.accounts.GetByID(ctx, otp.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeAccountNotFound,
				fmt.Sprintf("could not find account %s", otp.AccountID))), nil
		}
		return domain.ExchangeResult{}, fmt.Errorf("lookup account: %w", err)
	}
	if !account.Active {
		return domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodeAccountInactive,
			"account is not active", domain.EntityTypeAccount, account.ID)), nil
	}

	tokens, err := e.tokens.Generate(ctx, domain.EntityTypeAccount, account.ID, restrictions)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	return domain.Succeeded(tokens), nil
}

var (
	_ port.Exchange           = (*BasicToOTP)(nil)
	_ port.RestrictedExchange = (*OTPToAccessToken)(nil)
	_ port.AuthProvider       = (*OTPProvider)(nil)
)
