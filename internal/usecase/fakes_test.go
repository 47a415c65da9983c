package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository/memory"
)

// sequence records the order in which side effects happen across fakes.
type sequence struct {
	mu     sync.Mutex
	events []string
}

func (s *sequence) add(event string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *sequence) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type publishedMessage struct {
	channel string
	message domain.Message
}

type recordingBus struct {
	mu       sync.Mutex
	messages []publishedMessage
	seq      *sequence
	err      error
}

func (b *recordingBus) Publish(_ context.Context, channel string, message domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, publishedMessage{channel: channel, message: message})
	b.seq.add("publish:" + message.EventType)
	return b.err
}

func (b *recordingBus) onChannel(channel string) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Message
	for _, m := range b.messages {
		if m.channel == channel {
			out = append(out, m.message)
		}
	}
	return out
}

type recordingAttempts struct {
	*memory.ExchangeAttemptRepository
	seq *sequence
	err error
}

func newRecordingAttempts(seq *sequence) *recordingAttempts {
	return &recordingAttempts{ExchangeAttemptRepository: memory.NewExchangeAttemptRepository(), seq: seq}
}

func (r *recordingAttempts) Save(ctx context.Context, attempt domain.ExchangeAttempt) error {
	if r.err != nil {
		return r.err
	}
	r.seq.add("attempt")
	return r.ExchangeAttemptRepository.Save(ctx, attempt)
}

type stubExchange struct {
	pair   domain.ExchangePair
	result domain.ExchangeResult
	err    error
	panics bool

	mu       sync.Mutex
	calls    int
	requests []domain.AuthRequest
}

func newStubExchange(from, to string, result domain.ExchangeResult, err error) *stubExchange {
	return &stubExchange{pair: domain.NewExchangePair(from, to), result: result, err: err}
}

func (e *stubExchange) Pair() domain.ExchangePair { return e.pair }

func (e *stubExchange) Exchange(_ context.Context, request domain.AuthRequest) (domain.ExchangeResult, error) {
	e.mu.Lock()
	e.calls++
	e.requests = append(e.requests, request)
	e.mu.Unlock()
	if e.panics {
		panic("boom")
	}
	return e.result, e.err
}

func (e *stubExchange) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type restrictedStubExchange struct {
	*stubExchange
	restrictions []domain.TokenRestrictions
}

func (e *restrictedStubExchange) ExchangeWithRestrictions(_ context.Context, _ domain.AuthRequest, restrictions domain.TokenRestrictions) (domain.ExchangeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restrictions = append(e.restrictions, restrictions)
	return e.result, e.err
}

type stubProvider struct {
	tokenType string
	tokens    domain.Tokens
	err       error
	calls     int
}

func (p *stubProvider) TokenType() string { return p.tokenType }

func (p *stubProvider) Delete(context.Context, domain.AuthRequest) (domain.Tokens, error) {
	p.calls++
	return p.tokens, p.err
}

type stubLocks struct {
	locks []domain.AccountLock
	err   error
}

func (s *stubLocks) Save(context.Context, domain.AccountLock) error { return s.err }

func (s *stubLocks) FindByAccountID(_ context.Context, accountID string) ([]domain.AccountLock, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.AccountLock
	for _, lock := range s.locks {
		if lock.AccountID == accountID {
			out = append(out, lock)
		}
	}
	return out, nil
}

func (s *stubLocks) Delete(context.Context, string) (*domain.AccountLock, error) {
	return nil, errors.New("not supported")
}

// gatedRecords blocks Save until release is closed.
type gatedRecords struct {
	*memory.IdempotentRecordRepository
	release chan struct{}
	err     error
}

func (r *gatedRecords) Save(ctx context.Context, record domain.IdempotentRecord) error {
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return r.err
	}
	return r.IdempotentRecordRepository.Save(ctx, record)
}

var (
	_ port.MessageBus                 = (*recordingBus)(nil)
	_ port.ExchangeAttemptRepository  = (*recordingAttempts)(nil)
	_ port.RestrictedExchange         = (*restrictedStubExchange)(nil)
	_ port.AuthProvider               = (*stubProvider)(nil)
	_ port.AccountLockRepository      = (*stubLocks)(nil)
	_ port.IdempotentRecordRepository = (*gatedRecords)(nil)
)
