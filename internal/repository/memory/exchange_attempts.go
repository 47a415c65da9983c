package memory

import (
	"context"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// ExchangeAttemptRepository keeps attempts in memory without expiry.
type ExchangeAttemptRepository struct {
	items *gocache.Cache
}

// NewExchangeAttemptRepository constructs an empty attempt log.
func NewExchangeAttemptRepository() *ExchangeAttemptRepository {
	return &ExchangeAttemptRepository{items: newCache()}
}

func (r *ExchangeAttemptRepository) Save(_ context.Context, attempt domain.ExchangeAttempt) error {
	if err := r.items.Add(attempt.ID, attempt, gocache.NoExpiration); err != nil {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *ExchangeAttemptRepository) GetByID(_ context.Context, id string) (*domain.ExchangeAttempt, error) {
	value, ok := r.items.Get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	attempt := value.(domain.ExchangeAttempt)
	return &attempt, nil
}

func (r *ExchangeAttemptRepository) FindByEntity(_ context.Context, entityID string) ([]domain.ExchangeAttempt, error) {
	return r.filter(func(a domain.ExchangeAttempt) bool {
		return a.EntityID == entityID
	}), nil
}

func (r *ExchangeAttemptRepository) FindByEntityAndTimestamp(_ context.Context, entityID string, from time.Time) ([]domain.ExchangeAttempt, error) {
	return r.filter(func(a domain.ExchangeAttempt) bool {
		return a.EntityID == entityID && !a.CreatedAt.Before(from)
	}), nil
}

func (r *ExchangeAttemptRepository) FindByEntityAndTimestampAndExchange(_ context.Context, entityID string, from time.Time, exchangeFrom string) ([]domain.ExchangeAttempt, error) {
	return r.filter(func(a domain.ExchangeAttempt) bool {
		return a.EntityID == entityID && !a.CreatedAt.Before(from) && a.ExchangeFrom == exchangeFrom
	}), nil
}

func (r *ExchangeAttemptRepository) filter(match func(domain.ExchangeAttempt) bool) []domain.ExchangeAttempt {
	attempts := make([]domain.ExchangeAttempt, 0)
	for _, item := range r.items.Items() {
		attempt := item.Object.(domain.ExchangeAttempt)
		if match(attempt) {
			attempts = append(attempts, attempt)
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].CreatedAt.After(attempts[j].CreatedAt)
	})
	return attempts
}

var _ port.ExchangeAttemptRepository = (*ExchangeAttemptRepository)(nil)
