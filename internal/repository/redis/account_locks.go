package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

const (
	defaultAccountLockPrefix = "iam:account_lock"
	// DefaultLockRetention keeps expired locks readable as history.
	DefaultLockRetention = 30 * 24 * time.Hour
)

type accountLockRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountLockRepository keeps each lock under its own key plus a per-account index set of lock IDs.
// Lock keys outlive the lock by the retention window, so reads return expired locks too.
type AccountLockRepository struct {
	client    red.UniversalClient
	keys      keyspace
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountLockRepository wires a Redis client into an account lock repository.
func NewAccountLockRepository(client red.UniversalClient, keyPrefix string) *AccountLockRepository {
	return &AccountLockRepository{
		client:    client,
		keys:      newKeyspace(keyPrefix, defaultAccountLockPrefix),
		retention: DefaultLockRetention,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
}

// WithRetention sets how long a lock stays stored after it expires. Non-positive values are ignored.
func (r *AccountLockRepository) WithRetention(retention time.Duration) *AccountLockRepository {
	if retention > 0 {
		r.retention = retention
	}
	return r
}

// WithLogger sets the logger used for best-effort index maintenance.
func (r *AccountLockRepository) WithLogger(logger *zap.Logger) *AccountLockRepository {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Save stores the lock until its expiry plus the retention window.
func (r *AccountLockRepository) Save(ctx context.Context, lock domain.AccountLock) error {
	lockKey := r.keys.key("id", lock.ID)
	if err := requireKey(lockKey, "lock id"); err != nil {
		return err
	}
	indexKey := r.keys.key("account", lock.AccountID)
	if err := requireKey(indexKey, "account id"); err != nil {
		return err
	}

	ttl := lock.ExpiresAt.Add(r.retention).Sub(r.now())
	if ttl <= 0 {
		return errors.New("lock is past its retention window")
	}

	payload, err := json.Marshal(accountLockRecord{
		ID:        lock.ID,
		AccountID: lock.AccountID,
		CreatedAt: lock.CreatedAt.UTC(),
		ExpiresAt: lock.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal account lock: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Set(ctx, lockKey, payload, ttl)
		pipe.SAdd(ctx, indexKey, lock.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save account lock: %w", err)
	}

	return nil
}

// FindByAccountID returns every retained lock of the account, expired ones included.
// Index entries whose lock key is gone are pruned on a best-effort basis.
func (r *AccountLockRepository) FindByAccountID(ctx context.Context, accountID string) ([]domain.AccountLock, error) {
	indexKey := r.keys.key("account", accountID)
	if err := requireKey(indexKey, "account id"); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list account locks: %w", err)
	}
	if len(ids) == 0 {
		return []domain.AccountLock{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keys.key("id", id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load account locks: %w", err)
	}

	locks := make([]domain.AccountLock, 0, len(values))
	stale := make([]any, 0)
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		lock, err := decodeAccountLock(raw)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			r.logger.Warn("failed to prune account lock index",
				zap.String("account_id", accountID),
				zap.Int("stale", len(stale)),
				zap.Error(err),
			)
		}
	}

	return locks, nil
}

// Delete removes the lock and returns it.
func (r *AccountLockRepository) Delete(ctx context.Context, lockID string) (*domain.AccountLock, error) {
	lockKey := r.keys.key("id", lockID)
	if err := requireKey(lockKey, "lock id"); err != nil {
		return nil, err
	}

	raw, err := r.client.Get(ctx, lockKey).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get account lock: %w", err)
	}

	lock, err := decodeAccountLock(raw)
	if err != nil {
		return nil, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Del(ctx, lockKey)
		pipe.SRem(ctx, r.keys.key("account", lock.AccountID), lock.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis delete account lock: %w", err)
	}

	return &lock, nil
}

func decodeAccountLock(raw string) (domain.AccountLock, error) {
	var record accountLockRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.AccountLock{}, fmt.Errorf("unmarshal account lock: %w", err)
	}
	return domain.AccountLock{
		ID:        record.ID,
		AccountID: record.AccountID,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

var _ port.AccountLockRepository = (*AccountLockRepository)(nil)
