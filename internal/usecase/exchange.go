package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/logger"
	"github.com/arklim/iam-exchange/internal/infra/telemetry"
)

// unmatchedLabel replaces caller supplied token types in metrics for unknown exchanges.
const unmatchedLabel = "unmatched"

var errEmptyExchangeResult = errors.New("exchange returned neither tokens nor an error")

// ExchangeService dispatches token exchanges to registered strategies and audits every attempt.
//
// The lookup tables are built once by NewExchangeService and only read afterwards,
// so a single instance is safe for concurrent use.
type ExchangeService struct {
	exchanges map[domain.ExchangePair]port.Exchange
	providers map[string]port.AuthProvider
	attempts  *ExchangeAttemptService
	bus       port.MessageBus
	logger    *zap.Logger
	metrics   *telemetry.ExchangeMetrics
	now       func() time.Time
}

// NewExchangeService indexes exchanges by pair and providers by token type.
// Two strategies claiming the same pair, or two providers claiming the same type, is an error.
func NewExchangeService(
	exchanges []port.Exchange,
	providers []port.AuthProvider,
	attempts *ExchangeAttemptService,
	bus port.MessageBus,
	logger *zap.Logger,
) (*ExchangeService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("exchange attempt service is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	exchangeIndex := make(map[domain.ExchangePair]port.Exchange, len(exchanges))
	for _, exchange := range exchanges {
		if exchange == nil {
			continue
		}
		pair := exchange.Pair()
		if pair.From == "" || pair.To == "" {
			return nil, fmt.Errorf("exchange %T declares an incomplete pair %q", exchange, pair.String())
		}
		if existing, ok := exchangeIndex[pair]; ok {
			return nil, fmt.Errorf("exchange %s is claimed by both %T and %T", pair, existing, exchange)
		}
		exchangeIndex[pair] = exchange
	}

	providerIndex := make(map[string]port.AuthProvider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		tokenType := strings.TrimSpace(provider.TokenType())
		if tokenType == "" {
			return nil, fmt.Errorf("auth provider %T declares an empty token type", provider)
		}
		if existing, ok := providerIndex[tokenType]; ok {
			return nil, fmt.Errorf("token type %s is provided by both %T and %T", tokenType, existing, provider)
		}
		providerIndex[tokenType] = provider
	}

	return &ExchangeService{
		exchanges: exchangeIndex,
		providers: providerIndex,
		attempts:  attempts,
		bus:       bus,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithMetrics wires Prometheus collectors for exchange outcomes.
func (s *ExchangeService) WithMetrics(metrics *telemetry.ExchangeMetrics) *ExchangeService {
	s.metrics = metrics
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ExchangeService) WithClock(clock func() time.Time) *ExchangeService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// SupportsExchange reports whether a strategy is registered for from → to.
func (s *ExchangeService) SupportsExchange(from, to string) bool {
	_, ok := s.exchanges[domain.NewExchangePair(from, to)]
	return ok
}

// Exchange converts the proof carried by request from one token type into another.
func (s *ExchangeService) Exchange(ctx context.Context, request domain.AuthRequest, from, to string, reqCtx domain.RequestContext) (domain.Tokens, error) {
	return s.exchange(ctx, request, from, to, nil, reqCtx)
}

// ExchangeWithRestrictions is Exchange with the issued tokens narrowed by restrictions.
func (s *ExchangeService) ExchangeWithRestrictions(ctx context.Context, request domain.AuthRequest, from, to string, restrictions domain.TokenRestrictions, reqCtx domain.RequestContext) (domain.Tokens, error) {
	return s.exchange(ctx, request, from, to, &restrictions, reqCtx)
}

// Delete removes or revokes the token carried by request using the provider registered for tokenType.
func (s *ExchangeService) Delete(ctx context.Context, request domain.AuthRequest, tokenType string) (domain.Tokens, error) {
	tokenType = strings.TrimSpace(tokenType)
	provider, ok := s.providers[tokenType]
	if !ok {
		logger.With(s.logger, ctx).Warn("delete requested for unknown token type", zap.String("token_type", tokenType))
		return domain.Tokens{}, fmt.Errorf("%w: unknown token type %s", domain.ErrUnknownExchange, tokenType)
	}

	tokens, err := provider.Delete(ctx, request)
	if err != nil {
		if errors.Is(err, domain.ErrAuthorization) {
			return domain.Tokens{}, err
		}
		logger.With(s.logger, ctx).Error("token deletion failed", zap.String("token_type", tokenType), zap.Error(err))
		return domain.Tokens{}, fmt.Errorf("%w: %w", domain.ErrExchangeFailed, err)
	}
	return tokens, nil
}

func (s *ExchangeService) exchange(ctx context.Context, request domain.AuthRequest, from, to string, restrictions *domain.TokenRestrictions, reqCtx domain.RequestContext) (domain.Tokens, error) {
	pair := domain.NewExchangePair(from, to)
	log := logger.With(s.logger, ctx).With(zap.String("exchange_from", pair.From), zap.String("exchange_to", pair.To))

	strategy, ok := s.exchanges[pair]
	if !ok {
		log.Warn("request for unknown exchange")
		s.metrics.ObserveExchange(unmatchedLabel, unmatchedLabel, telemetry.OutcomeUnknown, 0)
		return domain.Tokens{}, fmt.Errorf("%w: %s to %s", domain.ErrUnknownExchange, pair.From, pair.To)
	}

	started := s.now()
	result, err := invokeExchange(ctx, strategy, request, restrictions)
	if err == nil {
		err = result.Err()
	}
	if err == nil && !result.IsSuccess() {
		err = errEmptyExchangeResult
	}
	if err != nil {
		return domain.Tokens{}, s.exchangeFailure(ctx, log, request, reqCtx, pair, err, started)
	}

	tokens, _ := result.Tokens()
	if err := s.exchangeSuccess(ctx, log, request, reqCtx, pair, tokens, started); err != nil {
		return domain.Tokens{}, err
	}
	return tokens, nil
}

// invokeExchange calls the restriction-aware overload when restrictions are supplied and
// the strategy supports it. Panics are converted into errors.
func invokeExchange(ctx context.Context, strategy port.Exchange, request domain.AuthRequest, restrictions *domain.TokenRestrictions) (result domain.ExchangeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.ExchangeResult{}
			err = fmt.Errorf("exchange %s panicked: %v", strategy.Pair(), r)
		}
	}()

	if restrictions != nil {
		if restricted, ok := strategy.(port.RestrictedExchange); ok {
			return restricted.ExchangeWithRestrictions(ctx, request, *restrictions)
		}
		request.Restrictions = restrictions
	}
	return strategy.Exchange(ctx, request)
}

func (s *ExchangeService) exchangeSuccess(ctx context.Context, log *zap.Logger, request domain.AuthRequest, reqCtx domain.RequestContext, pair domain.ExchangePair, tokens domain.Tokens, started time.Time) error {
	sideCtx := context.WithoutCancel(ctx)

	attempt := newAttempt(request, reqCtx, pair)
	attempt.EntityID = tokens.EntityID
	attempt.Successful = true
	if _, err := s.attempts.Create(sideCtx, attempt); err != nil {
		log.Error("failed to record successful exchange attempt",
			zap.String("entity_id", tokens.EntityID), zap.Error(err))
		s.metrics.ObserveExchange(pair.From, pair.To, telemetry.OutcomeError, s.now().Sub(started))
		return fmt.Errorf("%w: %w", domain.ErrExchangeFailed, err)
	}

	at := s.now()
	s.publish(sideCtx, log, domain.Message{
		EventType: domain.EventTypeExchangeSucceeded,
		EntityID:  tokens.EntityID,
		Timestamp: at,
		Payload:   domain.ExchangeSucceededMessage(pair, tokens, at),
	})

	log.Info("exchange succeeded",
		zap.String("entity_type", string(tokens.EntityType)),
		zap.String("entity_id", tokens.EntityID),
		zap.String("source_ip", logger.MaskIP(attempt.SourceIP)),
	)
	s.metrics.ObserveExchange(pair.From, pair.To, telemetry.OutcomeSuccess, at.Sub(started))
	return nil
}

// exchangeFailure records the failure and returns the error handed to the caller.
func (s *ExchangeService) exchangeFailure(ctx context.Context, log *zap.Logger, request domain.AuthRequest, reqCtx domain.RequestContext, pair domain.ExchangePair, cause error, started time.Time) error {
	sideCtx := context.WithoutCancel(ctx)
	at := s.now()

	var authErr *domain.AuthorizationError
	if !errors.As(cause, &authErr) {
		s.publish(sideCtx, log, domain.Message{
			EventType: domain.EventTypeExchangeFailed,
			Timestamp: at,
			Payload:   domain.ExchangeFailedMessage(pair, "", "", cause, at),
		})
		log.Error("exchange failed", zap.Error(cause))
		s.metrics.ObserveExchange(pair.From, pair.To, telemetry.OutcomeError, at.Sub(started))
		return fmt.Errorf("%w: %w", domain.ErrExchangeFailed, cause)
	}

	// Only account failures are audited; other entity types are reported on the bus alone.
	if authErr.EntityType == domain.EntityTypeAccount && authErr.EntityID != "" {
		attempt := newAttempt(request, reqCtx, pair)
		attempt.EntityID = authErr.EntityID
		attempt.Successful = false
		if _, err := s.attempts.Create(sideCtx, attempt); err != nil {
			log.Error("failed to record failed exchange attempt",
				zap.String("entity_id", authErr.EntityID), zap.Error(err))
		}
	}

	s.publish(sideCtx, log, domain.Message{
		EventType: domain.EventTypeExchangeFailed,
		EntityID:  authErr.EntityID,
		Timestamp: at,
		Payload:   domain.ExchangeFailedMessage(pair, authErr.EntityType, authErr.EntityID, authErr, at),
	})

	fields := []zap.Field{
		zap.String("code", string(authErr.Code)),
		zap.String("entity_type", string(authErr.EntityType)),
		zap.String("entity_id", authErr.EntityID),
	}
	if request.Identifier != "" {
		fields = append(fields, zap.String("identifier", logger.MaskIdentifier(request.Identifier)))
	}
	log.Info("exchange rejected", fields...)
	s.metrics.ObserveExchange(pair.From, pair.To, telemetry.OutcomeAuthorization, at.Sub(started))
	return cause
}

func (s *ExchangeService) publish(ctx context.Context, log *zap.Logger, message domain.Message) {
	message.EventID = uuid.NewString()
	if err := s.bus.Publish(ctx, domain.ChannelAuth, message); err != nil {
		log.Warn("failed to publish exchange event",
			zap.String("event_type", message.EventType), zap.Error(err))
	}
}

func newAttempt(request domain.AuthRequest, reqCtx domain.RequestContext, pair domain.ExchangePair) domain.ExchangeAttempt {
	sourceIP := request.SourceIP
	if sourceIP == "" {
		sourceIP = reqCtx.Source
	}
	clientID := reqCtx.ClientID
	if clientID == "" {
		clientID = request.ClientID
	}

	return domain.ExchangeAttempt{
		ExchangeFrom:      pair.From,
		ExchangeTo:        pair.To,
		ClientID:          clientID,
		SourceIP:          sourceIP,
		DeviceID:          request.DeviceID,
		ExternalSessionID: request.ExternalSessionID,
		UserAgent:         request.UserAgent,
	}
}
