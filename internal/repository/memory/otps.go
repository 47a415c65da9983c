package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// DefaultOTPGrace keeps expired codes readable after their expiry.
const DefaultOTPGrace = time.Hour

// OTPRepository keeps one-time passwords until their expiry plus a grace period.
type OTPRepository struct {
	mu    sync.Mutex
	items *gocache.Cache
	now   func() time.Time
}

// NewOTPRepository constructs an empty OTP store.
func NewOTPRepository() *OTPRepository {
	return &OTPRepository{items: newCache(), now: time.Now}
}

func (r *OTPRepository) Save(_ context.Context, otp domain.OneTimePassword) error {
	if err := r.items.Add(otp.ID, otp, ttlUntil(otp.ExpiresAt.Add(DefaultOTPGrace), r.now())); err != nil {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *OTPRepository) GetByID(_ context.Context, id string) (*domain.OneTimePassword, error) {
	value, ok := r.items.Get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	otp := value.(domain.OneTimePassword)
	return &otp, nil
}

func (r *OTPRepository) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, expiresAt, ok := r.items.GetWithExpiration(id)
	if !ok {
		return 0, repository.ErrNotFound
	}
	otp := value.(domain.OneTimePassword)
	otp.Attempts++
	r.items.Set(id, otp, ttlUntil(expiresAt, r.now()))
	return otp.Attempts, nil
}

func (r *OTPRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items.Get(id); !ok {
		return repository.ErrNotFound
	}
	r.items.Delete(id)
	return nil
}

var _ port.OTPRepository = (*OTPRepository)(nil)
