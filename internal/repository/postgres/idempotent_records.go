package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// IdempotentRecordRepository implements port.IdempotentRecordRepository.
// iam.idempotent_records carries a unique index on (idempotent_key, entity_type).
type IdempotentRecordRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdempotentRecordRepository constructs a new idempotent record repository.
func NewIdempotentRecordRepository(exec pgExecutor) *IdempotentRecordRepository {
	return &IdempotentRecordRepository{exec: exec, builder: newBuilder()}
}

// Save inserts the record, mapping unique violations to repository.ErrDuplicate.
func (r *IdempotentRecordRepository) Save(ctx context.Context, record domain.IdempotentRecord) error {
	stmt, args, err := r.builder.Insert("iam.idempotent_records").
		Columns("id", "idempotent_key", "entity_type", "entity_id", "created_at").
		Values(record.ID, record.IdempotentKey, string(record.EntityType), record.EntityID, record.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert idempotent record sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert idempotent record: %w", err)
	}

	return nil
}

// FindByKeyAndEntityType returns the record for the pair or repository.ErrNotFound.
func (r *IdempotentRecordRepository) FindByKeyAndEntityType(ctx context.Context, key string, entityType domain.EntityType) (*domain.IdempotentRecord, error) {
	stmt, args, err := r.builder.Select("id", "idempotent_key", "entity_type", "entity_id", "created_at").
		From("iam.idempotent_records").
		Where(squirrel.Eq{"idempotent_key": key, "entity_type": string(entityType)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select idempotent record sql: %w", err)
	}

	var (
		record     domain.IdempotentRecord
		recordType string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&record.ID,
		&record.IdempotentKey,
		&recordType,
		&record.EntityID,
		&record.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan idempotent record: %w", err)
	}
	record.EntityType = domain.EntityType(recordType)

	return &record, nil
}

var _ port.IdempotentRecordRepository = (*IdempotentRecordRepository)(nil)
