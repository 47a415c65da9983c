package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
)

// ErrEntityIDRequired indicates an attempts query without an entity.
var ErrEntityIDRequired = errors.New("entity id is required")

// ExchangeAttemptService owns the append-only exchange audit trail.
type ExchangeAttemptService struct {
	repo port.ExchangeAttemptRepository
	now  func() time.Time
}

// NewExchangeAttemptService constructs an ExchangeAttemptService.
func NewExchangeAttemptService(repo port.ExchangeAttemptRepository) *ExchangeAttemptService {
	return &ExchangeAttemptService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ExchangeAttemptService) WithClock(clock func() time.Time) *ExchangeAttemptService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Create persists a new attempt, assigning its identifier and timestamp.
func (s *ExchangeAttemptService) Create(ctx context.Context, attempt domain.ExchangeAttempt) (domain.ExchangeAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}

	if err := s.repo.Save(ctx, attempt); err != nil {
		return domain.ExchangeAttempt{}, fmt.Errorf("save exchange attempt: %w", err)
	}
	return attempt, nil
}

// GetByID returns a single attempt.
func (s *ExchangeAttemptService) GetByID(ctx context.Context, id string) (*domain.ExchangeAttempt, error) {
	return s.repo.GetByID(ctx, id)
}

// Update always fails; attempts are immutable.
func (s *ExchangeAttemptService) Update(context.Context, domain.ExchangeAttempt) error {
	return fmt.Errorf("exchange attempts cannot be updated: %w", domain.ErrUnsupportedOperation)
}

// Delete always fails; attempts are immutable.
func (s *ExchangeAttemptService) Delete(context.Context, string) error {
	return fmt.Errorf("exchange attempts cannot be deleted: %w", domain.ErrUnsupportedOperation)
}

// GetByEntityID returns every attempt recorded for the entity, newest first.
func (s *ExchangeAttemptService) GetByEntityID(ctx context.Context, entityID string) ([]domain.ExchangeAttempt, error) {
	return s.Find(ctx, domain.ExchangeAttemptsQuery{EntityID: entityID})
}

// Find resolves one of the three supported query shapes. FromExchange is only
// honoured together with FromTimestamp.
func (s *ExchangeAttemptService) Find(ctx context.Context, query domain.ExchangeAttemptsQuery) ([]domain.ExchangeAttempt, error) {
	entityID := strings.TrimSpace(query.EntityID)
	if entityID == "" {
		return nil, ErrEntityIDRequired
	}

	switch {
	case query.FromTimestamp == nil:
		return s.repo.FindByEntity(ctx, entityID)
	case strings.TrimSpace(query.FromExchange) == "":
		return s.repo.FindByEntityAndTimestamp(ctx, entityID, *query.FromTimestamp)
	default:
		return s.repo.FindByEntityAndTimestampAndExchange(ctx, entityID, *query.FromTimestamp, strings.TrimSpace(query.FromExchange))
	}
}
