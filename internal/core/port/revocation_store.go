package port

import (
	"context"
	"time"
)

// RevocationStore tracks revoked access-token identifiers until they expire.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, string, error)
}
