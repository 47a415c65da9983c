package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// Exchange converts one token type into another.
//
// Expected authentication failures are reported through domain.Failed; the error
// return is reserved for unexpected faults (I/O errors, misconfiguration).
type Exchange interface {
	Pair() domain.ExchangePair
	Exchange(ctx context.Context, request domain.AuthRequest) (domain.ExchangeResult, error)
}

// RestrictedExchange is implemented by exchanges able to narrow the issued tokens.
type RestrictedExchange interface {
	Exchange
	ExchangeWithRestrictions(ctx context.Context, request domain.AuthRequest, restrictions domain.TokenRestrictions) (domain.ExchangeResult, error)
}

// AuthProvider handles operations scoped to a single token type, such as revocation.
type AuthProvider interface {
	TokenType() string
	Delete(ctx context.Context, request domain.AuthRequest) (domain.Tokens, error)
}
