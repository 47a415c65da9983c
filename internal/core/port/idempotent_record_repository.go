package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// IdempotentRecordRepository stores idempotent records.
// Save must fail with repository.ErrDuplicate when (key, entity type) already exists.
type IdempotentRecordRepository interface {
	Save(ctx context.Context, record domain.IdempotentRecord) error
	FindByKeyAndEntityType(ctx context.Context, key string, entityType domain.EntityType) (*domain.IdempotentRecord, error)
}
