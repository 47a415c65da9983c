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
	"github.com/arklim/iam-exchange/internal/repository"
)

var (
	// ErrEmailRequired indicates the account was submitted without an email.
	ErrEmailRequired = errors.New("email is required")
	// ErrPasswordRequired indicates the account was submitted without a password.
	ErrPasswordRequired = errors.New("password is required")
	// ErrIdentifierTaken indicates another account already logs in with the identifier.
	ErrIdentifierTaken = errors.New("identifier already in use")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrWeakPassword wraps the password policy violation.
	ErrWeakPassword = errors.New("password does not meet requirements")
)

// AccountService creates accounts and their login credentials under an idempotent key.
type AccountService struct {
	accounts    port.AccountRepository
	credentials port.CredentialsRepository
	hasher      port.PasswordHasher
	policy      port.PasswordPolicy
	idempotency *IdempotencyService
	bus         port.MessageBus
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(
	accounts port.AccountRepository,
	credentials port.CredentialsRepository,
	hasher port.PasswordHasher,
	idempotency *IdempotencyService,
	bus port.MessageBus,
	logger *zap.Logger,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accounts:    accounts,
		credentials: credentials,
		hasher:      hasher,
		idempotency: idempotency,
		bus:         bus,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithPasswordPolicy enables password strength checks on account creation.
func (s *AccountService) WithPasswordPolicy(policy port.PasswordPolicy) *AccountService {
	s.policy = policy
	return s
}

// CreateAccount creates an active account and credentials keyed by its email.
// Both writes are guarded by the same idempotent key; a replayed key returns
// *domain.IdempotencyConflictError carrying the previously created account,
// after completing the credentials step if the first attempt failed there.
// The email format is validated at the transport boundary.
func (s *AccountService) CreateAccount(ctx context.Context, idempotentKey string, account domain.Account, password string) (domain.Account, error) {
	email := strings.ToLower(strings.TrimSpace(account.Email))
	if email == "" {
		return domain.Account{}, ErrEmailRequired
	}
	if password == "" {
		return domain.Account{}, ErrPasswordRequired
	}
	if s.policy != nil {
		if err := s.policy.Validate(password, email); err != nil {
			return domain.Account{}, fmt.Errorf("%w: %w", ErrWeakPassword, err)
		}
	}
	if strings.TrimSpace(idempotentKey) == "" {
		return domain.Account{}, domain.ErrIdempotentKeyRequired
	}

	created, err := PerformIdempotent(ctx, s.idempotency, idempotentKey, domain.EntityTypeAccount,
		func(ctx context.Context) (domain.Account, error) {
			if _, err := s.credentials.GetByIdentifier(ctx, email); err == nil {
				return domain.Account{}, ErrIdentifierTaken
			} else if !errors.Is(err, repository.ErrNotFound) {
				return domain.Account{}, fmt.Errorf("lookup credentials: %w", err)
			}

			record := domain.Account{
				ID:        uuid.NewString(),
				Domain:    strings.TrimSpace(account.Domain),
				Email:     email,
				Active:    true,
				CreatedAt: s.now(),
			}
			if err := s.accounts.Create(ctx, record); err != nil {
				return domain.Account{}, fmt.Errorf("create account: %w", err)
			}
			return record, nil
		})
	var conflict *domain.IdempotencyConflictError
	if errors.As(err, &conflict) {
		if resumeErr := s.resumeCredentials(ctx, idempotentKey, conflict.Record.EntityID, password); resumeErr != nil {
			return domain.Account{}, resumeErr
		}
		return domain.Account{}, err
	}
	if err != nil {
		return domain.Account{}, err
	}

	if _, err := s.createCredentials(ctx, idempotentKey, created, password); err != nil {
		return domain.Account{}, err
	}

	log := logger.With(s.logger, ctx)
	log.Info("account created",
		zap.String("account_id", created.ID),
		zap.String("email", logger.MaskEmail(created.Email)),
	)

	if s.bus != nil {
		message := domain.Message{
			EventID:   uuid.NewString(),
			EventType: domain.EventTypeEntityCreated,
			EntityID:  created.ID,
			Timestamp: created.CreatedAt,
			Payload: domain.EntityCreatedMessage{
				EntityType: domain.EntityTypeAccount,
				EntityID:   created.ID,
				Timestamp:  created.CreatedAt,
			},
		}
		if err := s.bus.Publish(context.WithoutCancel(ctx), domain.ChannelAccounts, message); err != nil {
			log.Warn("failed to publish account created event", zap.String("account_id", created.ID), zap.Error(err))
		}
	}

	return created, nil
}

func (s *AccountService) createCredentials(ctx context.Context, idempotentKey string, account domain.Account, password string) (domain.Credentials, error) {
	return PerformIdempotent(ctx, s.idempotency, idempotentKey, domain.EntityTypeCredentials,
		func(ctx context.Context) (domain.Credentials, error) {
			hash, err := s.hasher.Hash(password)
			if err != nil {
				return domain.Credentials{}, fmt.Errorf("hash password: %w", err)
			}
			credentials := domain.Credentials{
				ID:           uuid.NewString(),
				AccountID:    account.ID,
				Identifier:   account.Email,
				PasswordHash: hash,
				CreatedAt:    s.now(),
			}
			if err := s.credentials.Create(ctx, credentials); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return domain.Credentials{}, ErrIdentifierTaken
				}
				return domain.Credentials{}, fmt.Errorf("create credentials: %w", err)
			}
			return credentials, nil
		})
}

// resumeCredentials creates the missing credentials of an account stored by an
// earlier attempt under the same key.
func (s *AccountService) resumeCredentials(ctx context.Context, idempotentKey, accountID, password string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get account: %w", err)
	}

	existing, err := s.credentials.GetByIdentifier(ctx, account.Email)
	switch {
	case err == nil && existing.AccountID == account.ID:
		return nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("lookup credentials: %w", err)
	}

	_, err = s.createCredentials(ctx, idempotentKey, *account, password)
	var conflict *domain.IdempotencyConflictError
	if errors.As(err, &conflict) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.With(s.logger, ctx).Info("account credentials completed on retry",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
	)
	return nil
}

// GetByID returns the account, used to resolve idempotency conflicts to the original entity.
func (s *AccountService) GetByID(ctx context.Context, id string) (domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return *account, nil
}
