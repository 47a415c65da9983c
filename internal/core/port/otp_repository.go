package port

import (
	"context"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// OTPRepository stores one-time passwords. Expired codes stay readable for a
// grace period so redemption can report them as expired rather than unknown.
type OTPRepository interface {
	Save(ctx context.Context, otp domain.OneTimePassword) error
	GetByID(ctx context.Context, id string) (*domain.OneTimePassword, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}
