package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/infra/config"
	"github.com/arklim/iam-exchange/internal/repository/memory"
)

type otpOutbox struct {
	mu       sync.Mutex
	messages []domain.OTPGeneratedMessage
	err      error
}

func (o *otpOutbox) Publish(_ context.Context, channel string, message domain.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	if payload, ok := message.Payload.(domain.OTPGeneratedMessage); ok && channel == domain.ChannelOTP {
		o.messages = append(o.messages, payload)
	}
	return nil
}

func (o *otpOutbox) last(t *testing.T) domain.OTPGeneratedMessage {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		t.Fatalf("no otp was published")
	}
	return o.messages[len(o.messages)-1]
}

type otpFixture struct {
	*fixture
	outbox *otpOutbox
	issue  *BasicToOTP
	redeem *OTPToAccessToken
}

func newOTPFixture(t *testing.T, maxAttempts int) *otpFixture {
	t.Helper()
	outbox := &otpOutbox{}
	f := newFixtureWith(t, func(deps *Dependencies, repos *memory.Repositories) {
		deps.OTPs = repos.OTPs
		deps.Bus = outbox
		deps.OTP = config.OTPSettings{Lifetime: time.Minute, Length: 6, MaxAttempts: maxAttempts}
	})

	fx := &otpFixture{fixture: f, outbox: outbox}
	for _, e := range f.registry.Exchanges {
		switch strategy := e.(type) {
		case *BasicToOTP:
			fx.issue = strategy
		case *OTPToAccessToken:
			fx.redeem = strategy
		}
	}
	if fx.issue == nil || fx.redeem == nil {
		t.Fatalf("otp exchanges are not registered")
	}
	return fx
}

func (f *otpFixture) issueFor(t *testing.T, identifier string) (domain.Tokens, string) {
	t.Helper()
	result, err := f.issue.Exchange(context.Background(), domain.AuthRequest{Identifier: identifier, Password: "s3cret-pass", ClientID: "web"})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	tokens, ok := result.Tokens()
	if !ok {
		t.Fatalf("expected otp to be issued, got %v", result.Err())
	}
	return tokens, f.outbox.last(t).Code
}

func assertAccountFailure(t *testing.T, result domain.ExchangeResult, code domain.ErrorCode) {
	t.Helper()
	var authErr *domain.AuthorizationError
	if !errors.As(result.Err(), &authErr) {
		t.Fatalf("expected authorization failure, got %v", result.Err())
	}
	if authErr.Code != code || authErr.EntityType != domain.EntityTypeAccount || authErr.EntityID != "42" {
		t.Fatalf("expected %s attributed to account 42, got %+v", code, authErr)
	}
}

func TestOTPRegistry(t *testing.T) {
	f := newOTPFixture(t, 3)

	if got := f.issue.Pair(); got.String() != "basic-otp" {
		t.Fatalf("unexpected issue pair %s", got)
	}
	if got := f.redeem.Pair(); got.String() != "otp-accessToken" {
		t.Fatalf("unexpected redeem pair %s", got)
	}
	if len(f.registry.Providers) != 3 {
		t.Fatalf("expected the otp provider to be registered, got %d providers", len(f.registry.Providers))
	}
}

func TestBasicToOTP_IssuesAndPublishes(t *testing.T) {
	f := newOTPFixture(t, 3)

	tokens, code := f.issueFor(t, "alice")
	if tokens.Type != domain.TokenTypeOTP || tokens.EntityID != "42" || tokens.EntityType != domain.EntityTypeAccount {
		t.Fatalf("unexpected otp tokens %+v", tokens)
	}
	if len(code) != 6 {
		t.Fatalf("expected a six digit code, got %q", code)
	}

	stored, err := f.repos.OTPs.GetByID(context.Background(), tokens.Token)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.CodeHash == code || stored.ClientID != "web" {
		t.Fatalf("expected hashed code with request metadata, got %+v", stored)
	}
}

func TestBasicToOTP_Failures(t *testing.T) {
	f := newOTPFixture(t, 3)

	result, err := f.issue.Exchange(context.Background(), domain.AuthRequest{Identifier: "alice", Password: "wrong"})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	assertAccountFailure(t, result, domain.ErrorCodePasswordsDoNotMatch)

	f.outbox.err = errors.New("bus down")
	if _, err := f.issue.Exchange(context.Background(), domain.AuthRequest{Identifier: "alice", Password: "s3cret-pass"}); err == nil {
		t.Fatalf("expected publish failure to fail the exchange")
	}
}

func TestOTPToAccessToken_RedeemsOnce(t *testing.T) {
	f := newOTPFixture(t, 3)
	ctx := context.Background()
	tokens, code := f.issueFor(t, "alice")

	result, err := f.redeem.Exchange(ctx, domain.AuthRequest{Token: tokens.Token + ":" + code})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	issued, ok := result.Tokens()
	if !ok || issued.Type != domain.TokenTypeAccessToken || issued.EntityID != "42" {
		t.Fatalf("expected access token for account 42, got %+v %v", issued, result.Err())
	}

	result, err = f.redeem.Exchange(ctx, domain.AuthRequest{Token: tokens.Token + ":" + code})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if !errors.Is(result.Err(), domain.ErrAuthorization) {
		t.Fatalf("expected a used code to be rejected, got %v", result.Err())
	}
}

func TestOTPToAccessToken_WrongCodeIsAttributedAndCounted(t *testing.T) {
	f := newOTPFixture(t, 2)
	ctx := context.Background()
	tokens, code := f.issueFor(t, "alice")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 2; i++ {
		result, err := f.redeem.Exchange(ctx, domain.AuthRequest{Token: tokens.Token + ":" + wrong})
		if err != nil {
			t.Fatalf("Exchange: %v", err)
		}
		assertAccountFailure(t, result, domain.ErrorCodePasswordsDoNotMatch)
	}

	// The limit is reached, so even the right code is refused.
	result, err := f.redeem.Exchange(ctx, domain.AuthRequest{Token: tokens.Token + ":" + code})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	assertAccountFailure(t, result, domain.ErrorCodeInvalidToken)
}

func TestOTPToAccessToken_Failures(t *testing.T) {
	f := newOTPFixture(t, 3)
	ctx := context.Background()
	tokens, code := f.issueFor(t, "alice")

	tests := []struct {
		name  string
		token string
		code  domain.ErrorCode
	}{
		{name: "missing code", token: tokens.Token, code: domain.ErrorCodeInvalidAuthorizationFormat},
		{name: "unknown id", token: "missing:" + code, code: domain.ErrorCodeInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.redeem.Exchange(ctx, domain.AuthRequest{Token: tt.token})
			if err != nil {
				t.Fatalf("Exchange: %v", err)
			}
			var authErr *domain.AuthorizationError
			if !errors.As(result.Err(), &authErr) || authErr.Code != tt.code || authErr.HasEntity() {
				t.Fatalf("expected unattributed %s, got %v", tt.code, result.Err())
			}
		})
	}

	t.Run("expired", func(t *testing.T) {
		f.redeem.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		defer func() { f.redeem.now = time.Now }()

		result, err := f.redeem.Exchange(ctx, domain.AuthRequest{Token: tokens.Token + ":" + code})
		if err != nil {
			t.Fatalf("Exchange: %v", err)
		}
		assertAccountFailure(t, result, domain.ErrorCodeExpiredToken)
	})
}

func TestOTPProvider_Delete(t *testing.T) {
	f := newOTPFixture(t, 3)
	ctx := context.Background()
	tokens, _ := f.issueFor(t, "alice")

	provider := f.registry.Providers[2].(*OTPProvider)
	deleted, err := provider.Delete(ctx, domain.AuthRequest{Token: tokens.Token})
	if err != nil || deleted.EntityID != "42" {
		t.Fatalf("Delete: %+v %v", deleted, err)
	}
	if _, err := provider.Delete(ctx, domain.AuthRequest{Token: tokens.Token}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error for a removed otp, got %v", err)
	}
}
