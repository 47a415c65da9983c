package port

import (
	"context"
	"time"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// ExchangeAttemptRepository persists the append-only exchange audit trail.
type ExchangeAttemptRepository interface {
	Save(ctx context.Context, attempt domain.ExchangeAttempt) error
	GetByID(ctx context.Context, id string) (*domain.ExchangeAttempt, error)
	FindByEntity(ctx context.Context, entityID string) ([]domain.ExchangeAttempt, error)
	FindByEntityAndTimestamp(ctx context.Context, entityID string, from time.Time) ([]domain.ExchangeAttempt, error)
	FindByEntityAndTimestampAndExchange(ctx context.Context, entityID string, from time.Time, exchangeFrom string) ([]domain.ExchangeAttempt, error)
}
