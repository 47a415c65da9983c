package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

var exchangeAttemptColumns = []string{
	"id",
	"entity_id",
	"exchange_from",
	"exchange_to",
	"successful",
	"client_id",
	"source_ip",
	"device_id",
	"external_session_id",
	"user_agent",
	"created_at",
}

// ExchangeAttemptRepository implements port.ExchangeAttemptRepository on iam.exchange_attempts.
type ExchangeAttemptRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewExchangeAttemptRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewExchangeAttemptRepository(exec pgExecutor) *ExchangeAttemptRepository {
	return &ExchangeAttemptRepository{exec: exec, builder: newBuilder()}
}

// Save appends an attempt row.
func (r *ExchangeAttemptRepository) Save(ctx context.Context, attempt domain.ExchangeAttempt) error {
	stmt, args, err := r.builder.Insert("iam.exchange_attempts").
		Columns(exchangeAttemptColumns...).
		Values(
			attempt.ID,
			attempt.EntityID,
			attempt.ExchangeFrom,
			attempt.ExchangeTo,
			attempt.Successful,
			optionalString(attempt.ClientID),
			optionalString(attempt.SourceIP),
			optionalString(attempt.DeviceID),
			optionalString(attempt.ExternalSessionID),
			optionalString(attempt.UserAgent),
			attempt.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert exchange attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert exchange attempt: %w", err)
	}

	return nil
}

// GetByID loads a single attempt.
func (r *ExchangeAttemptRepository) GetByID(ctx context.Context, id string) (*domain.ExchangeAttempt, error) {
	stmt, args, err := r.builder.Select(exchangeAttemptColumns...).
		From("iam.exchange_attempts").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select exchange attempt sql: %w", err)
	}

	attempt, err := scanExchangeAttempt(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan exchange attempt: %w", err)
	}

	return attempt, nil
}

// FindByEntity lists every attempt recorded for the entity, newest first.
func (r *ExchangeAttemptRepository) FindByEntity(ctx context.Context, entityID string) ([]domain.ExchangeAttempt, error) {
	return r.list(ctx, squirrel.Eq{"entity_id": entityID})
}

// FindByEntityAndTimestamp lists attempts created at or after from.
func (r *ExchangeAttemptRepository) FindByEntityAndTimestamp(ctx context.Context, entityID string, from time.Time) ([]domain.ExchangeAttempt, error) {
	return r.list(ctx, squirrel.And{
		squirrel.Eq{"entity_id": entityID},
		squirrel.GtOrEq{"created_at": from.UTC()},
	})
}

// FindByEntityAndTimestampAndExchange additionally filters by the source token type.
func (r *ExchangeAttemptRepository) FindByEntityAndTimestampAndExchange(ctx context.Context, entityID string, from time.Time, exchangeFrom string) ([]domain.ExchangeAttempt, error) {
	return r.list(ctx, squirrel.And{
		squirrel.Eq{"entity_id": entityID},
		squirrel.GtOrEq{"created_at": from.UTC()},
		squirrel.Eq{"exchange_from": exchangeFrom},
	})
}

func (r *ExchangeAttemptRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]domain.ExchangeAttempt, error) {
	stmt, args, err := r.builder.Select(exchangeAttemptColumns...).
		From("iam.exchange_attempts").
		Where(where).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list exchange attempts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query exchange attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.ExchangeAttempt, 0)
	for rows.Next() {
		attempt, err := scanExchangeAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange attempts: %w", err)
	}

	return attempts, nil
}

func scanExchangeAttempt(row pgx.Row) (*domain.ExchangeAttempt, error) {
	var (
		attempt           domain.ExchangeAttempt
		clientID          sql.NullString
		sourceIP          sql.NullString
		deviceID          sql.NullString
		externalSessionID sql.NullString
		userAgent         sql.NullString
	)

	if err := row.Scan(
		&attempt.ID,
		&attempt.EntityID,
		&attempt.ExchangeFrom,
		&attempt.ExchangeTo,
		&attempt.Successful,
		&clientID,
		&sourceIP,
		&deviceID,
		&externalSessionID,
		&userAgent,
		&attempt.CreatedAt,
	); err != nil {
		return nil, err
	}

	attempt.ClientID = nullableString(clientID)
	attempt.SourceIP = nullableString(sourceIP)
	attempt.DeviceID = nullableString(deviceID)
	attempt.ExternalSessionID = nullableString(externalSessionID)
	attempt.UserAgent = nullableString(userAgent)
	attempt.CreatedAt = attempt.CreatedAt.UTC()

	return &attempt, nil
}

var _ port.ExchangeAttemptRepository = (*ExchangeAttemptRepository)(nil)
