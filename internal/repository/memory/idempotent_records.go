package memory

import (
	"context"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// IdempotentRecordRepository enforces (key, entity type) uniqueness through gocache.Add.
type IdempotentRecordRepository struct {
	items *gocache.Cache
}

// NewIdempotentRecordRepository constructs an empty record store.
func NewIdempotentRecordRepository() *IdempotentRecordRepository {
	return &IdempotentRecordRepository{items: newCache()}
}

func (r *IdempotentRecordRepository) Save(_ context.Context, record domain.IdempotentRecord) error {
	if err := r.items.Add(recordKey(record.IdempotentKey, record.EntityType), record, gocache.NoExpiration); err != nil {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *IdempotentRecordRepository) FindByKeyAndEntityType(_ context.Context, key string, entityType domain.EntityType) (*domain.IdempotentRecord, error) {
	value, ok := r.items.Get(recordKey(key, entityType))
	if !ok {
		return nil, repository.ErrNotFound
	}
	record := value.(domain.IdempotentRecord)
	return &record, nil
}

func recordKey(key string, entityType domain.EntityType) string {
	return string(entityType) + "/" + key
}

var _ port.IdempotentRecordRepository = (*IdempotentRecordRepository)(nil)
