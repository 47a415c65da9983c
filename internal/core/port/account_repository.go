package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// CredentialsRepository exposes persistence behavior for login credentials.
type CredentialsRepository interface {
	Create(ctx context.Context, credentials domain.Credentials) error
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Credentials, error)
}
