package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// AccountLockRepository exposes account lock storage. Implementations may return
// expired locks; callers evaluate expiry at read time.
type AccountLockRepository interface {
	Save(ctx context.Context, lock domain.AccountLock) error
	FindByAccountID(ctx context.Context, accountID string) ([]domain.AccountLock, error)
	Delete(ctx context.Context, lockID string) (*domain.AccountLock, error)
}
