package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/infra/logger"
	"github.com/arklim/iam-exchange/internal/infra/telemetry"
	"github.com/arklim/iam-exchange/internal/repository"
)

const defaultIdempotentWriteTimeout = 5 * time.Second

// IdempotencyService deduplicates client-retried creation requests.
//
// The record is written after the guarded operation returns and without blocking
// the caller. Two requests carrying the same key that arrive before the first
// record lands both run the operation; the service narrows retries, it does not
// serialise concurrent duplicates.
type IdempotencyService struct {
	repo         port.IdempotentRecordRepository
	logger       *zap.Logger
	metrics      *telemetry.ExchangeMetrics
	writeTimeout time.Duration
	now          func() time.Time
	pending      sync.WaitGroup
}

// NewIdempotencyService constructs an IdempotencyService.
func NewIdempotencyService(repo port.IdempotentRecordRepository, cfg config.IdempotencySettings, logger *zap.Logger) *IdempotencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultIdempotentWriteTimeout
	}
	return &IdempotencyService{
		repo:         repo,
		logger:       logger,
		writeTimeout: timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics wires the counter incremented when a record write is lost.
func (s *IdempotencyService) WithMetrics(metrics *telemetry.ExchangeMetrics) *IdempotencyService {
	s.metrics = metrics
	return s
}

// FindByKeyAndEntityType returns the stored record, or nil when none exists.
func (s *IdempotencyService) FindByKeyAndEntityType(ctx context.Context, key string, entityType domain.EntityType) (*domain.IdempotentRecord, error) {
	record, err := s.repo.FindByKeyAndEntityType(ctx, key, entityType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find idempotent record: %w", err)
	}
	return record, nil
}

// Create persists record. A second record for the same key and entity type fails with repository.ErrDuplicate.
func (s *IdempotencyService) Create(ctx context.Context, record domain.IdempotentRecord) (domain.IdempotentRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return domain.IdempotentRecord{}, fmt.Errorf("save idempotent record: %w", err)
	}
	return record, nil
}

// Wait blocks until every detached record write has finished.
func (s *IdempotencyService) Wait() {
	s.pending.Wait()
}

func (s *IdempotencyService) createDetached(ctx context.Context, record domain.IdempotentRecord) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		if _, err := s.Create(writeCtx, record); err != nil {
			s.metrics.IdempotentWriteFailed()
			log := logger.With(s.logger, ctx).With(
				zap.String("idempotent_key", record.IdempotentKey),
				zap.String("entity_type", string(record.EntityType)),
				zap.String("entity_id", record.EntityID),
			)
			if errors.Is(err, repository.ErrDuplicate) {
				log.Warn("idempotent record already written by a concurrent request")
				return
			}
			log.Error("failed to persist idempotent record", zap.Error(err))
		}
	}()
}

// PerformIdempotent runs operation at most once per (key, entityType) as far as
// previously persisted records can tell. An existing record yields a
// *domain.IdempotencyConflictError carrying it; otherwise the operation result is
// returned and its record is written in the background.
func PerformIdempotent[T domain.Entity](
	ctx context.Context,
	svc *IdempotencyService,
	key string,
	entityType domain.EntityType,
	operation func(context.Context) (T, error),
) (T, error) {
	var zero T

	key = strings.TrimSpace(key)
	if key == "" {
		return zero, domain.ErrIdempotentKeyRequired
	}

	existing, err := svc.FindByKeyAndEntityType(ctx, key, entityType)
	if err != nil {
		return zero, err
	}
	if existing != nil {
		return zero, &domain.IdempotencyConflictError{Record: *existing}
	}

	result, err := operation(ctx)
	if err != nil {
		return zero, err
	}

	svc.createDetached(ctx, domain.IdempotentRecord{
		IdempotentKey: key,
		EntityType:    entityType,
		EntityID:      result.EntityID(),
	})

	return result, nil
}
