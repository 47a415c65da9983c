package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/telemetry"
)

type exchangeHarness struct {
	service  *ExchangeService
	attempts *recordingAttempts
	bus      *recordingBus
	seq      *sequence
}

func newExchangeHarness(t *testing.T, exchanges []port.Exchange, providers []port.AuthProvider) *exchangeHarness {
	t.Helper()

	seq := &sequence{}
	attempts := newRecordingAttempts(seq)
	bus := &recordingBus{seq: seq}

	service, err := NewExchangeService(exchanges, providers, NewExchangeAttemptService(attempts), bus, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewExchangeService: %v", err)
	}
	return &exchangeHarness{service: service, attempts: attempts, bus: bus, seq: seq}
}

func (h *exchangeHarness) attemptsFor(t *testing.T, entityID string) []domain.ExchangeAttempt {
	t.Helper()
	attempts, err := h.attempts.FindByEntity(context.Background(), entityID)
	if err != nil {
		t.Fatalf("FindByEntity: %v", err)
	}
	return attempts
}

func accountTokens(id string) domain.Tokens {
	return domain.Tokens{Token: "tok-" + id, Type: domain.TokenTypeAccessToken, EntityType: domain.EntityTypeAccount, EntityID: id}
}

func TestNewExchangeService_RejectsDuplicateRegistrations(t *testing.T) {
	attempts := NewExchangeAttemptService(newRecordingAttempts(nil))
	bus := &recordingBus{}

	_, err := NewExchangeService([]port.Exchange{
		newStubExchange("basic", "accessToken", domain.ExchangeResult{}, nil),
		newStubExchange("basic", "accessToken", domain.ExchangeResult{}, nil),
	}, nil, attempts, bus, nil)
	if err == nil {
		t.Fatalf("expected duplicate pair to be rejected")
	}

	_, err = NewExchangeService(nil, []port.AuthProvider{
		&stubProvider{tokenType: "accessToken"},
		&stubProvider{tokenType: "accessToken"},
	}, attempts, bus, nil)
	if err == nil {
		t.Fatalf("expected duplicate provider to be rejected")
	}
}

func TestExchange_DispatchesToRegisteredStrategy(t *testing.T) {
	basic := newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil)
	otp := newStubExchange("otp", "accessToken", domain.Succeeded(accountTokens("2")), nil)
	h := newExchangeHarness(t, []port.Exchange{basic, otp}, nil)

	if !h.service.SupportsExchange("basic", "accessToken") || !h.service.SupportsExchange("otp", "accessToken") {
		t.Fatalf("expected registered pairs to be supported")
	}
	if h.service.SupportsExchange("accessToken", "basic") {
		t.Fatalf("reverse pair must not be supported")
	}

	tokens, err := h.service.Exchange(context.Background(), domain.AuthRequest{Token: "123456"}, "otp", "accessToken", domain.RequestContext{})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tokens.EntityID != "2" {
		t.Fatalf("expected tokens from otp strategy, got %+v", tokens)
	}
	if basic.callCount() != 0 || otp.callCount() != 1 {
		t.Fatalf("unexpected dispatch counts basic=%d otp=%d", basic.callCount(), otp.callCount())
	}
}

func TestExchange_UnknownPair(t *testing.T) {
	h := newExchangeHarness(t, []port.Exchange{
		newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil),
	}, nil)

	_, err := h.service.Exchange(context.Background(), domain.AuthRequest{}, "unknown", "unknown", domain.RequestContext{})
	if !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
	if errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("unknown exchange must not be an authorization failure")
	}
	if events := h.seq.all(); len(events) != 0 {
		t.Fatalf("expected no side effects, got %v", events)
	}
}

func TestExchange_SuccessRecordsAttemptThenPublishes(t *testing.T) {
	h := newExchangeHarness(t, []port.Exchange{
		newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("account")), nil),
	}, nil)

	request := domain.AuthRequest{Token: "Basic the-rest", DeviceID: "user-device", ExternalSessionID: "external-session"}
	reqCtx := domain.RequestContext{ClientID: "client", Source: "10.0.0.2"}

	tokens, err := h.service.Exchange(context.Background(), request, "basic", "accessToken", reqCtx)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tokens.EntityID != "account" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}

	if got, want := h.seq.all(), []string{"attempt", "publish:" + domain.EventTypeExchangeSucceeded}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected side effect order %v, want %v", got, want)
	}

	attempts := h.attemptsFor(t, "account")
	if len(attempts) != 1 {
		t.Fatalf("expected one attempt, got %d", len(attempts))
	}
	attempt := attempts[0]
	if !attempt.Successful || attempt.ExchangeFrom != "basic" || attempt.ExchangeTo != "accessToken" {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if attempt.ClientID != "client" || attempt.SourceIP != "10.0.0.2" || attempt.DeviceID != "user-device" || attempt.ExternalSessionID != "external-session" {
		t.Fatalf("request context not recorded: %+v", attempt)
	}

	messages := h.bus.onChannel(domain.ChannelAuth)
	if len(messages) != 1 {
		t.Fatalf("expected one auth message, got %d", len(messages))
	}
	payload, ok := messages[0].Payload.(domain.AuthMessage)
	if !ok || !payload.Successful || payload.EntityID != "account" || payload.EntityType != domain.EntityTypeAccount {
		t.Fatalf("unexpected payload %+v", messages[0].Payload)
	}
}

func TestExchange_FailureClassification(t *testing.T) {
	tests := []struct {
		name         string
		result       domain.ExchangeResult
		err          error
		panics       bool
		wantAttempts int
		wantAuth     bool
		entityID     string
	}{
		{
			name:         "account authorization failure",
			result:       domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodePasswordsDoNotMatch, "bad", domain.EntityTypeAccount, "acc-1")),
			wantAttempts: 1,
			wantAuth:     true,
			entityID:     "acc-1",
		},
		{
			name:     "application authorization failure",
			result:   domain.Failed(domain.NewEntityAuthorizationError(domain.ErrorCodeInvalidToken, "bad", domain.EntityTypeApplication, "app-1")),
			wantAuth: true,
			entityID: "app-1",
		},
		{
			name:     "unattributed authorization failure",
			result:   domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeCredentialsNotFound, "missing")),
			wantAuth: true,
		},
		{name: "unexpected error", err: errors.New("database down")},
		{name: "empty result"},
		{name: "panic", panics: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := newStubExchange("basic", "accessToken", tt.result, tt.err)
			strategy.panics = tt.panics
			h := newExchangeHarness(t, []port.Exchange{strategy}, nil)

			_, err := h.service.Exchange(context.Background(), domain.AuthRequest{}, "basic", "accessToken", domain.RequestContext{})
			if err == nil {
				t.Fatalf("expected error")
			}

			if tt.wantAuth {
				var authErr *domain.AuthorizationError
				if !errors.As(err, &authErr) || authErr != tt.result.Err() {
					t.Fatalf("expected the original authorization error, got %v", err)
				}
			} else {
				if !errors.Is(err, domain.ErrExchangeFailed) {
					t.Fatalf("expected ErrExchangeFailed, got %v", err)
				}
				if errors.Is(err, domain.ErrAuthorization) {
					t.Fatalf("generic failure must not match ErrAuthorization")
				}
			}

			total := 0
			if tt.entityID != "" {
				total = len(h.attemptsFor(t, tt.entityID))
			}
			if total != tt.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tt.wantAttempts, total)
			}
			if tt.wantAttempts == 1 && h.attemptsFor(t, tt.entityID)[0].Successful {
				t.Fatalf("failed exchange recorded as successful")
			}

			messages := h.bus.onChannel(domain.ChannelAuth)
			if len(messages) != 1 {
				t.Fatalf("expected exactly one failure message, got %d", len(messages))
			}
			payload := messages[0].Payload.(domain.AuthMessage)
			if payload.Successful || payload.EntityID != tt.entityID {
				t.Fatalf("unexpected failure payload %+v", payload)
			}
		})
	}
}

func TestExchange_RestrictionsDispatch(t *testing.T) {
	restricted := &restrictedStubExchange{stubExchange: newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil)}
	plain := newStubExchange("otp", "accessToken", domain.Succeeded(accountTokens("2")), nil)
	h := newExchangeHarness(t, []port.Exchange{restricted, plain}, nil)
	restrictions := domain.TokenRestrictions{Scopes: []string{"read"}}

	if _, err := h.service.ExchangeWithRestrictions(context.Background(), domain.AuthRequest{}, "basic", "accessToken", restrictions, domain.RequestContext{}); err != nil {
		t.Fatalf("ExchangeWithRestrictions: %v", err)
	}
	if restricted.callCount() != 0 || len(restricted.restrictions) != 1 || restricted.restrictions[0].Scopes[0] != "read" {
		t.Fatalf("expected restriction-aware overload to be used")
	}

	if _, err := h.service.ExchangeWithRestrictions(context.Background(), domain.AuthRequest{}, "otp", "accessToken", restrictions, domain.RequestContext{}); err != nil {
		t.Fatalf("ExchangeWithRestrictions: %v", err)
	}
	if plain.callCount() != 1 || plain.requests[0].Restrictions == nil || plain.requests[0].Restrictions.Scopes[0] != "read" {
		t.Fatalf("expected plain overload to receive restrictions on the request")
	}

	if _, err := h.service.Exchange(context.Background(), domain.AuthRequest{}, "basic", "accessToken", domain.RequestContext{}); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if restricted.callCount() != 1 {
		t.Fatalf("expected plain overload without restrictions")
	}
}

func TestExchange_AttemptWriteFailureFailsExchange(t *testing.T) {
	h := newExchangeHarness(t, []port.Exchange{
		newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil),
	}, nil)
	h.attempts.err = errors.New("disk full")

	_, err := h.service.Exchange(context.Background(), domain.AuthRequest{}, "basic", "accessToken", domain.RequestContext{})
	if !errors.Is(err, domain.ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
	if len(h.bus.onChannel(domain.ChannelAuth)) != 0 {
		t.Fatalf("success must not be announced without an attempt")
	}
}

func TestExchange_PublishFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := &recordingBus{err: errors.New("broker unavailable")}
	service, err := NewExchangeService([]port.Exchange{
		newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil),
	}, nil, NewExchangeAttemptService(newRecordingAttempts(nil)), bus, zap.New(core))
	if err != nil {
		t.Fatalf("NewExchangeService: %v", err)
	}

	if _, err := service.Exchange(context.Background(), domain.AuthRequest{}, "basic", "accessToken", domain.RequestContext{}); err != nil {
		t.Fatalf("publish failure must not fail the exchange: %v", err)
	}
	if logs.FilterMessage("failed to publish exchange event").Len() != 1 {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestExchange_Metrics(t *testing.T) {
	metrics, err := telemetry.NewExchangeMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewExchangeMetrics: %v", err)
	}
	h := newExchangeHarness(t, []port.Exchange{
		newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil),
		newStubExchange("refresh", "accessToken", domain.Failed(domain.NewAuthorizationError(domain.ErrorCodeInvalidToken, "")), nil),
	}, nil)
	h.service.WithMetrics(metrics)

	ctx := context.Background()
	_, _ = h.service.Exchange(ctx, domain.AuthRequest{}, "basic", "accessToken", domain.RequestContext{})
	_, _ = h.service.Exchange(ctx, domain.AuthRequest{}, "refresh", "accessToken", domain.RequestContext{})
	_, _ = h.service.Exchange(ctx, domain.AuthRequest{}, "nope", "accessToken", domain.RequestContext{})

	if got := testutil.ToFloat64(metrics.Exchanges.WithLabelValues("basic", "accessToken", telemetry.OutcomeSuccess)); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Exchanges.WithLabelValues("refresh", "accessToken", telemetry.OutcomeAuthorization)); got != 1 {
		t.Fatalf("expected one authorization failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Exchanges.WithLabelValues(unmatchedLabel, unmatchedLabel, telemetry.OutcomeUnknown)); got != 1 {
		t.Fatalf("expected one unknown exchange, got %v", got)
	}
}

func TestDelete_UsesProviderIndex(t *testing.T) {
	provider := &stubProvider{tokenType: "accessToken", tokens: accountTokens("1")}
	h := newExchangeHarness(t, []port.Exchange{
		newStubExchange("basic", "accessToken", domain.Succeeded(accountTokens("1")), nil),
	}, []port.AuthProvider{provider})

	tokens, err := h.service.Delete(context.Background(), domain.AuthRequest{Token: "t"}, "accessToken")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tokens.EntityID != "1" || provider.calls != 1 {
		t.Fatalf("expected provider to handle delete")
	}

	// A registered exchange target is not a provider.
	if _, err := h.service.Delete(context.Background(), domain.AuthRequest{}, "basic"); !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}

	provider.err = errors.New("store down")
	if _, err := h.service.Delete(context.Background(), domain.AuthRequest{}, "accessToken"); !errors.Is(err, domain.ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
}
