// Package exchange holds the token exchange strategies and auth providers
// registered with the exchange engine at startup.
package exchange

import (
	"fmt"

	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/infra/security"
)

// Dependencies collects the collaborators the built-in strategies need.
type Dependencies struct {
	JWT           config.JWTSettings
	Accounts      port.AccountRepository
	Credentials   port.CredentialsRepository
	RefreshTokens port.RefreshTokenRepository
	Revocations   port.RevocationStore
	Hasher        port.PasswordHasher
	// OTPs enables the basic → otp and otp → accessToken exchanges when set.
	OTPs port.OTPRepository
	OTP  config.OTPSettings
	Bus  port.MessageBus
}

// Registry is the explicit list of strategies handed to the exchange service.
type Registry struct {
	Exchanges   []port.Exchange
	Providers   []port.AuthProvider
	AccessToken *AccessTokenProvider
}

// NewRegistry builds every built-in exchange and auth provider.
func NewRegistry(deps Dependencies) (*Registry, error) {
	if deps.Accounts == nil || deps.Credentials == nil || deps.RefreshTokens == nil {
		return nil, fmt.Errorf("exchange: account, credentials and refresh token repositories are required")
	}
	if deps.Hasher == nil {
		return nil, fmt.Errorf("exchange: password hasher is required")
	}

	issuer, err := security.NewJWTIssuer(deps.JWT)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	accessTokens := NewAccessTokenProvider(issuer, deps.RefreshTokens, deps.Revocations, deps.JWT.RefreshTokenTTL)

	registry := &Registry{
		Exchanges: []port.Exchange{
			NewBasicToAccessToken(deps.Credentials, deps.Accounts, deps.Hasher, accessTokens),
			NewRefreshToAccessToken(deps.RefreshTokens, deps.Accounts, accessTokens),
		},
		Providers: []port.AuthProvider{
			accessTokens,
			NewRefreshTokenProvider(deps.RefreshTokens),
		},
		AccessToken: accessTokens,
	}

	if deps.OTPs != nil {
		otps := NewOTPProvider(deps.OTPs, deps.Bus, deps.OTP)
		registry.Exchanges = append(registry.Exchanges,
			NewBasicToOTP(deps.Credentials, deps.Accounts, deps.Hasher, otps),
			NewOTPToAccessToken(deps.OTPs, deps.Accounts, accessTokens, deps.OTP.MaxAttempts),
		)
		registry.Providers = append(registry.Providers, otps)
	}

	return registry, nil
}
