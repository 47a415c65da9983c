package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/logger"
)

// ErrAccountIDRequired indicates an account lock operation without an account.
var ErrAccountIDRequired = errors.New("account id is required")

// AccountLockService reads and manages time-bounded account locks.
type AccountLockService struct {
	repo   port.AccountLockRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAccountLockService constructs an AccountLockService.
func NewAccountLockService(repo port.AccountLockRepository, logger *zap.Logger) *AccountLockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountLockService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AccountLockService) WithClock(clock func() time.Time) *AccountLockService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// GetLocksByAccountID returns the stored lock history of the account, expired locks included.
func (s *AccountLockService) GetLocksByAccountID(ctx context.Context, accountID string) ([]domain.AccountLock, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrAccountIDRequired
	}

	locks, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("find account locks: %w", err)
	}
	return locks, nil
}

// GetActiveLocksByAccountID returns the locks whose expiry is still in the future.
// Expiry is evaluated here, at read time, against the stored history.
func (s *AccountLockService) GetActiveLocksByAccountID(ctx context.Context, accountID string) ([]domain.AccountLock, error) {
	locks, err := s.GetLocksByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := make([]domain.AccountLock, 0, len(locks))
	for _, lock := range locks {
		if lock.IsActive(now) {
			active = append(active, lock)
		}
	}
	return active, nil
}

// Lock blocks authentication for the account during duration.
func (s *AccountLockService) Lock(ctx context.Context, accountID string, duration time.Duration) (domain.AccountLock, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.AccountLock{}, ErrAccountIDRequired
	}
	if duration <= 0 {
		return domain.AccountLock{}, fmt.Errorf("lock duration must be positive")
	}

	now := s.now()
	lock := domain.AccountLock{
		ID:        uuid.NewString(),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}
	if err := s.repo.Save(ctx, lock); err != nil {
		return domain.AccountLock{}, fmt.Errorf("save account lock: %w", err)
	}

	logger.With(s.logger, ctx).Info("account locked",
		zap.String("account_id", accountID),
		zap.String("lock_id", lock.ID),
		zap.Time("expires_at", lock.ExpiresAt),
	)
	return lock, nil
}

// Delete lifts a lock before it expires.
func (s *AccountLockService) Delete(ctx context.Context, lockID string) (*domain.AccountLock, error) {
	lock, err := s.repo.Delete(ctx, strings.TrimSpace(lockID))
	if err != nil {
		return nil, fmt.Errorf("delete account lock: %w", err)
	}
	logger.With(s.logger, ctx).Info("account lock removed",
		zap.String("account_id", lock.AccountID),
		zap.String("lock_id", lock.ID),
	)
	return lock, nil
}
