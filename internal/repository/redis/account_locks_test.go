package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/repository"
)

func TestAccountLockRepository_SaveAndFind(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewAccountLockRepository(client, "locks").WithRetention(10 * time.Minute)

	ctx := context.Background()
	now := time.Now().UTC()

	short := domain.AccountLock{ID: "lock-short", AccountID: "account-1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	long := domain.AccountLock{ID: "lock-long", AccountID: "account-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	for _, lock := range []domain.AccountLock{short, long} {
		if err := repo.Save(ctx, lock); err != nil {
			t.Fatalf("Save(%s) returned error: %v", lock.ID, err)
		}
	}

	locks, err := repo.FindByAccountID(ctx, "account-1")
	if err != nil {
		t.Fatalf("FindByAccountID returned error: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("expected two locks, got %d", len(locks))
	}

	// Past the short lock's expiry but inside retention: storage still returns it.
	server.FastForward(2 * time.Minute)

	locks, err = repo.FindByAccountID(ctx, "account-1")
	if err != nil {
		t.Fatalf("FindByAccountID returned error: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("expected expired lock to be retained, got %+v", locks)
	}

	server.FastForward(10 * time.Minute)

	locks, err = repo.FindByAccountID(ctx, "account-1")
	if err != nil {
		t.Fatalf("FindByAccountID returned error: %v", err)
	}
	if len(locks) != 1 || locks[0].ID != "lock-long" {
		t.Fatalf("expected only lock-long to remain after retention, got %+v", locks)
	}

	members, err := server.Members("locks:account:account-1")
	if err != nil {
		t.Fatalf("Members returned error: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected stale index entry to be pruned, got %v", members)
	}
}

type failingSRemClient struct {
	red.UniversalClient
}

func (c failingSRemClient) SRem(context.Context, string, ...interface{}) *red.IntCmd {
	return red.NewIntResult(0, errors.New("srem unavailable"))
}

func TestAccountLockRepository_PruneFailureKeepsLocks(t *testing.T) {
	client, server := newTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC()

	writer := NewAccountLockRepository(client, "locks")
	for _, lock := range []domain.AccountLock{
		{ID: "lock-live", AccountID: "account-9", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "lock-gone", AccountID: "account-9", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := writer.Save(ctx, lock); err != nil {
			t.Fatalf("Save(%s) returned error: %v", lock.ID, err)
		}
	}
	server.Del("locks:id:lock-gone")

	core, logs := observer.New(zapcore.WarnLevel)
	reader := NewAccountLockRepository(failingSRemClient{UniversalClient: client}, "locks").WithLogger(zap.New(core))

	locks, err := reader.FindByAccountID(ctx, "account-9")
	if err != nil {
		t.Fatalf("prune failure must not fail the read: %v", err)
	}
	if len(locks) != 1 || locks[0].ID != "lock-live" {
		t.Fatalf("expected the live lock, got %+v", locks)
	}
	if logs.FilterMessage("failed to prune account lock index").Len() != 1 {
		t.Fatalf("expected prune failure to be logged, got %v", logs.All())
	}
}

func TestAccountLockRepository_Delete(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewAccountLockRepository(client, "")

	ctx := context.Background()
	now := time.Now().UTC()
	lock := domain.AccountLock{ID: "lock-1", AccountID: "account-2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	if err := repo.Save(ctx, lock); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	deleted, err := repo.Delete(ctx, "lock-1")
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if deleted.AccountID != "account-2" {
		t.Fatalf("unexpected deleted lock: %+v", deleted)
	}

	locks, err := repo.FindByAccountID(ctx, "account-2")
	if err != nil {
		t.Fatalf("FindByAccountID returned error: %v", err)
	}
	if len(locks) != 0 {
		t.Fatalf("expected no locks after delete, got %d", len(locks))
	}

	if _, err := repo.Delete(ctx, "lock-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAccountLockRepository_SaveRespectsRetention(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewAccountLockRepository(client, "").WithRetention(10 * time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	recent := domain.AccountLock{ID: "lock-recent", AccountID: "account-3", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
	if err := repo.Save(ctx, recent); err != nil {
		t.Fatalf("expired lock inside retention must be stored: %v", err)
	}

	old := domain.AccountLock{ID: "lock-old", AccountID: "account-3", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	if err := repo.Save(ctx, old); err == nil {
		t.Fatalf("expected error for lock past retention")
	}
}
