package memory

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// AccountRepository keeps accounts keyed by ID.
type AccountRepository struct {
	items *gocache.Cache
}

// NewAccountRepository constructs an empty account store.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{items: newCache()}
}

func (r *AccountRepository) Create(_ context.Context, account domain.Account) error {
	if err := r.items.Add(account.ID, account, gocache.NoExpiration); err != nil {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	value, ok := r.items.Get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	account := value.(domain.Account)
	return &account, nil
}

// CredentialsRepository keeps credentials keyed by normalized identifier.
type CredentialsRepository struct {
	items *gocache.Cache
}

// NewCredentialsRepository constructs an empty credentials store.
func NewCredentialsRepository() *CredentialsRepository {
	return &CredentialsRepository{items: newCache()}
}

func (r *CredentialsRepository) Create(_ context.Context, credentials domain.Credentials) error {
	credentials.Identifier = normalizeIdentifier(credentials.Identifier)
	if err := r.items.Add(credentials.Identifier, credentials, gocache.NoExpiration); err != nil {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *CredentialsRepository) GetByIdentifier(_ context.Context, identifier string) (*domain.Credentials, error) {
	value, ok := r.items.Get(normalizeIdentifier(identifier))
	if !ok {
		return nil, repository.ErrNotFound
	}
	credentials := value.(domain.Credentials)
	return &credentials, nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

var (
	_ port.AccountRepository     = (*AccountRepository)(nil)
	_ port.CredentialsRepository = (*CredentialsRepository)(nil)
)
