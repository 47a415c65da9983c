package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// DefaultLockRetention keeps expired locks readable as history.
const DefaultLockRetention = 30 * 24 * time.Hour

// AccountLockRepository stores locks until their expiry plus a retention window.
type AccountLockRepository struct {
	items     *gocache.Cache
	retention time.Duration
	now       func() time.Time
}

// NewAccountLockRepository constructs an empty lock store.
func NewAccountLockRepository() *AccountLockRepository {
	return &AccountLockRepository{items: newCache(), retention: DefaultLockRetention, now: time.Now}
}

// WithRetention sets how long a lock stays stored after it expires. Non-positive values are ignored.
func (r *AccountLockRepository) WithRetention(retention time.Duration) *AccountLockRepository {
	if retention > 0 {
		r.retention = retention
	}
	return r
}

func (r *AccountLockRepository) Save(_ context.Context, lock domain.AccountLock) error {
	r.items.Set(lock.ID, lock, ttlUntil(lock.ExpiresAt.Add(r.retention), r.now()))
	return nil
}

func (r *AccountLockRepository) FindByAccountID(_ context.Context, accountID string) ([]domain.AccountLock, error) {
	locks := make([]domain.AccountLock, 0)
	for _, item := range r.items.Items() {
		lock := item.Object.(domain.AccountLock)
		if lock.AccountID == accountID {
			locks = append(locks, lock)
		}
	}
	return locks, nil
}

func (r *AccountLockRepository) Delete(_ context.Context, lockID string) (*domain.AccountLock, error) {
	value, ok := r.items.Get(lockID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.items.Delete(lockID)
	lock := value.(domain.AccountLock)
	return &lock, nil
}

var _ port.AccountLockRepository = (*AccountLockRepository)(nil)
