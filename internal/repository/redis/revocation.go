package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/iam-exchange/internal/core/port"
)

const defaultRevocationPrefix = "iam:revoked_jti"

// RevocationRepository stores revoked access-token identifiers as Redis hashes
// that expire together with the token they describe.
type RevocationRepository struct {
	client red.UniversalClient
	keys   keyspace
	now    func() time.Time
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client red.UniversalClient, keyPrefix string) *RevocationRepository {
	return &RevocationRepository{
		client: client,
		keys:   newKeyspace(keyPrefix, defaultRevocationPrefix),
		now:    time.Now,
	}
}

// MarkRevoked records the JTI with its reason until ttl elapses.
func (r *RevocationRepository) MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.keys.key(jti)
	if err := requireKey(key, "jti"); err != nil {
		return err
	}

	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.HSet(ctx, key,
			"reason", reason,
			"revoked_at", strconv.FormatInt(r.now().UTC().Unix(), 10),
		)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mark jti revoked: %w", err)
	}

	return nil
}

// IsRevoked reports whether the JTI is revoked and returns the recorded reason.
func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, string, error) {
	key := r.keys.key(jti)
	if err := requireKey(key, "jti"); err != nil {
		return false, "", err
	}

	reason, err := r.client.HGet(ctx, key, "reason").Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("redis get revoked jti: %w", err)
	}

	return true, reason, nil
}

var _ port.RevocationStore = (*RevocationRepository)(nil)
