package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// RefreshTokenRepository manages persisted refresh token hashes.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	Delete(ctx context.Context, id string) error
}
