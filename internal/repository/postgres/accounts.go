package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// AccountRepository implements port.AccountRepository.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a new account repository.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{exec: exec, builder: newBuilder()}
}

// Create inserts an account.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Insert("iam.accounts").
		Columns("id", "domain", "email", "active", "created_at").
		Values(account.ID, account.Domain, optionalString(strings.ToLower(account.Email)), account.Active, account.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID loads an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select("id", "domain", "email", "active", "created_at").
		From("iam.accounts").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	var (
		account domain.Account
		email   sql.NullString
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&account.ID,
		&account.Domain,
		&email,
		&account.Active,
		&account.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.Email = nullableString(email)

	return &account, nil
}

// CredentialsRepository implements port.CredentialsRepository.
type CredentialsRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialsRepository constructs a new credentials repository.
func NewCredentialsRepository(exec pgExecutor) *CredentialsRepository {
	return &CredentialsRepository{exec: exec, builder: newBuilder()}
}

// Create inserts credentials; the identifier is unique.
func (r *CredentialsRepository) Create(ctx context.Context, credentials domain.Credentials) error {
	stmt, args, err := r.builder.Insert("iam.credentials").
		Columns("id", "account_id", "identifier", "password_hash", "created_at").
		Values(
			credentials.ID,
			credentials.AccountID,
			strings.ToLower(strings.TrimSpace(credentials.Identifier)),
			credentials.PasswordHash,
			credentials.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert credentials sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert credentials: %w", err)
	}

	return nil
}

// GetByIdentifier resolves credentials by login identifier (case-insensitive).
func (r *CredentialsRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Credentials, error) {
	stmt, args, err := r.builder.Select("id", "account_id", "identifier", "password_hash", "created_at").
		From("iam.credentials").
		Where(squirrel.Eq{"identifier": strings.ToLower(strings.TrimSpace(identifier))}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credentials sql: %w", err)
	}

	var credentials domain.Credentials
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&credentials.ID,
		&credentials.AccountID,
		&credentials.Identifier,
		&credentials.PasswordHash,
		&credentials.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan credentials: %w", err)
	}

	return &credentials, nil
}

var (
	_ port.AccountRepository     = (*AccountRepository)(nil)
	_ port.CredentialsRepository = (*CredentialsRepository)(nil)
)
