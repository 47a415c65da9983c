package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/repository"
)

func TestRefreshTokenRepository_GetByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "entity_id", "entity_type", "token_hash", "created_at", "expires_at"}).
		AddRow("rt-1", "account-1", "ACCOUNT", "hash-1", now, now.Add(time.Hour))

	mock.ExpectQuery(`SELECT .*FROM iam\.refresh_tokens`).WithArgs("hash-1").WillReturnRows(rows)

	token, err := repo.GetByHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetByHash returned error: %v", err)
	}
	if token.EntityType != domain.EntityTypeAccount || token.EntityID != "account-1" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if token.IsExpired(now) {
		t.Fatalf("expected token to be valid")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_DeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRefreshTokenRepository(mock)

	mock.ExpectExec(`DELETE FROM iam\.refresh_tokens`).
		WithArgs("rt-404").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "rt-404"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
