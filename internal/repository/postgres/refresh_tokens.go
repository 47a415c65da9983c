package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// RefreshTokenRepository implements port.RefreshTokenRepository using iam.refresh_tokens.
type RefreshTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRefreshTokenRepository constructs a new refresh token repository.
func NewRefreshTokenRepository(exec pgExecutor) *RefreshTokenRepository {
	return &RefreshTokenRepository{exec: exec, builder: newBuilder()}
}

// Create inserts a refresh token hash.
func (r *RefreshTokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("iam.refresh_tokens").
		Columns("id", "entity_id", "entity_type", "token_hash", "created_at", "expires_at").
		Values(
			token.ID,
			token.EntityID,
			string(token.EntityType),
			token.TokenHash,
			token.CreatedAt.UTC(),
			token.ExpiresAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByHash retrieves a refresh token record by its hashed value.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select("id", "entity_id", "entity_type", "token_hash", "created_at", "expires_at").
		From("iam.refresh_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var (
		token      domain.RefreshToken
		entityType string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.EntityID,
		&entityType,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	token.EntityType = domain.EntityType(entityType)

	return &token, nil
}

// Delete removes the refresh token row.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("iam.refresh_tokens").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete refresh token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
