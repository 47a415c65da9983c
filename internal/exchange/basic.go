package exchange

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

const basicScheme = "basic "

// basicVerifier checks identifier/password credentials against stored Argon2id hashes.
type basicVerifier struct {
	credentials port.CredentialsRepository
	accounts    port.AccountRepository
	hasher      port.PasswordHasher
}

// BasicToAccessToken verifies identifier/password credentials and issues an access token.
type BasicToAccessToken struct {
	verifier basicVerifier
	tokens   *AccessTokenProvider
}

// NewBasicToAccessToken constructs the basic → accessToken exchange.
func NewBasicToAccessToken(
	credentials port.CredentialsRepository,
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	tokens *AccessTokenProvider,
) *BasicToAccessToken {
	return &BasicToAccessToken{
		verifier: basicVerifier{credentials: credentials, accounts: accounts, hasher: hasher},
		tokens:   tokens,
	}
}

// Pair implements port.Exchange.
func (e *BasicToAccessToken) Pair() domain.ExchangePair {
	return domain.NewExchangePair(domain.TokenTypeBasic, domain.TokenTypeAccessToken)
}

// Exchange implements port.Exchange.
func (e *BasicToAccessToken) Exchange(ctx context.Context, request domain.AuthRequest) (domain.ExchangeResult, error) {
	return e.exchange(ctx, request, request.Restrictions)
}

// ExchangeWithRestrictions implements port.RestrictedExchange.
func (e *BasicToAccessToken) ExchangeWithRestrictions(ctx context.Context, request domain.AuthRequest, restrictions domain.TokenRestrictions) (domain.ExchangeResult, error) {
	return e.exchange(ctx, request, &restrictions)
}

func (e *BasicToAccessToken) exchange(ctx context.Context, request domain.AuthRequest, restrictions *domain.TokenRestrictions) (domain.ExchangeResult, error) {
	account, failure, err := e.verifier.authenticate(ctx, request)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	if failure != nil {
		return domain.Failed(failure), nil
	}

	tokens, err := e.tokens.Generate(ctx, domain.EntityTypeAccount, account.ID, restrictions)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	return domain.Succeeded(tokens), nil
}

// authenticate returns the account on success, an authorization failure for
// rejected credentials, or an error for storage faults.
func (e basicVerifier) authenticate(ctx context.Context, request domain.AuthRequest) (*domain.Account, *domain.AuthorizationError, error) {
	identifier, password, ok := basicCredentials(request)
	if !ok {
		return nil, domain.NewAuthorizationError(domain.ErrorCodeInvalidAuthorizationFormat,
			"invalid basic authorization format"), nil
	}

	credentials, err := e.credentials.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewAuthorizationError(domain.ErrorCodeCredentialsNotFound,
				"identifier does not exist"), nil
		}
		return nil, nil, fmt.Errorf("lookup credentials: %w", err)
	}

	matches, err := e.hasher.Verify(password, credentials.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !matches {
		return nil, domain.NewEntityAuthorizationError(domain.ErrorCodePasswordsDoNotMatch,
			"passwords do not match", domain.EntityTypeAccount, credentials.AccountID), nil
	}

	account, err := e.accounts.GetByID(ctx, credentials.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewAuthorizationError(domain.ErrorCodeAccountNotFound,
				"account does not exist"), nil
		}
		return nil, nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.Active {
		return nil, domain.NewAuthorizationError(domain.ErrorCodeAccountInactive, "account is not active"), nil
	}

	return account, nil, nil
}

// basicCredentials extracts identifier and password from either an encoded
// basic token ("Basic base64(id:pw)") or the explicit request fields.
func basicCredentials(request domain.AuthRequest) (string, string, bool) {
	token := strings.TrimSpace(request.Token)
	if token == "" {
		identifier := strings.TrimSpace(request.Identifier)
		return identifier, request.Password, identifier != "" && request.Password != ""
	}

	if len(token) > len(basicScheme) && strings.EqualFold(token[:len(basicScheme)], basicScheme) {
		token = strings.TrimSpace(token[len(basicScheme):])
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", false
	}

	identifier, password, found := strings.Cut(string(decoded), ":")
	if !found || identifier == "" || password == "" {
		return "", "", false
	}
	return identifier, password, true
}

var _ port.RestrictedExchange = (*BasicToAccessToken)(nil)
