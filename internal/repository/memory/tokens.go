package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

// RefreshTokenRepository keeps refresh tokens keyed by hash until they expire.
type RefreshTokenRepository struct {
	items *gocache.Cache
	now   func() time.Time
}

// NewRefreshTokenRepository constructs an empty refresh token store.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{items: newCache(), now: time.Now}
}

func (r *RefreshTokenRepository) Create(_ context.Context, token domain.RefreshToken) error {
	if err := r.items.Add(token.TokenHash, token, ttlUntil(token.ExpiresAt, r.now())); err != nil {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *RefreshTokenRepository) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	value, ok := r.items.Get(hash)
	if !ok {
		return nil, repository.ErrNotFound
	}
	token := value.(domain.RefreshToken)
	return &token, nil
}

func (r *RefreshTokenRepository) Delete(_ context.Context, id string) error {
	for hash, item := range r.items.Items() {
		if item.Object.(domain.RefreshToken).ID == id {
			r.items.Delete(hash)
			return nil
		}
	}
	return repository.ErrNotFound
}

// RevocationStore keeps revoked JTIs with their reason until the TTL elapses.
type RevocationStore struct {
	items *gocache.Cache
}

// NewRevocationStore constructs an empty revocation store.
func NewRevocationStore() *RevocationStore {
	return &RevocationStore{items: newCache()}
}

func (s *RevocationStore) MarkRevoked(_ context.Context, jti string, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.items.Set(jti, reason, ttl)
	return nil
}

func (s *RevocationStore) IsRevoked(_ context.Context, jti string) (bool, string, error) {
	value, ok := s.items.Get(jti)
	if !ok {
		return false, "", nil
	}
	return true, value.(string), nil
}

var (
	_ port.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
	_ port.RevocationStore        = (*RevocationStore)(nil)
)
