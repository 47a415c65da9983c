package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, transport-agnostic failure identifier.
type ErrorCode string

const (
	ErrorCodeUnknownExchange    ErrorCode = "UNKNOWN_EXCHANGE"
	ErrorCodeGenericAuthFailure ErrorCode = "GENERIC_AUTH_FAILURE"
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrorCodeExpiredToken       ErrorCode = "EXPIRED_TOKEN"
	ErrorCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrorCodeAccountLocked      ErrorCode = "ACCOUNT_IS_LOCKED"
	ErrorCodeIdempotency        ErrorCode = "IDEMPOTENCY_ERROR"

	ErrorCodeInvalidAuthorizationFormat ErrorCode = "INVALID_AUTHORIZATION_FORMAT"
	ErrorCodeCredentialsNotFound        ErrorCode = "CREDENTIALS_DOES_NOT_EXIST"
	ErrorCodePasswordsDoNotMatch        ErrorCode = "PASSWORDS_DO_NOT_MATCH"
	ErrorCodeAccountInactive            ErrorCode = "ACCOUNT_INACTIVE"
	ErrorCodeAccountNotFound            ErrorCode = "ACCOUNT_DOES_NOT_EXIST"
)

var (
	// ErrUnknownExchange indicates no strategy is registered for the requested token types.
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrExchangeFailed wraps unexpected strategy failures.
	ErrExchangeFailed = errors.New("exchange failed")
	// ErrAuthorization matches every *AuthorizationError.
	ErrAuthorization = errors.New("authorization failed")
	// ErrAccountLocked matches authorization errors raised for locked accounts.
	ErrAccountLocked = errors.New("account is locked")
	// ErrIdempotencyConflict matches every *IdempotencyConflictError.
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	// ErrIdempotentKeyRequired indicates a creation flow was invoked without an idempotent key.
	ErrIdempotentKeyRequired = errors.New("idempotent key is required")
	// ErrUnsupportedOperation indicates the operation is not permitted on an immutable entity.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// AuthorizationError is an expected authentication failure, optionally attributed to an entity.
type AuthorizationError struct {
	Code       ErrorCode
	Message    string
	EntityType EntityType
	EntityID   string
}

// NewAuthorizationError builds an authorization failure without entity attribution.
func NewAuthorizationError(code ErrorCode, message string) *AuthorizationError {
	return &AuthorizationError{Code: code, Message: message}
}

// NewEntityAuthorizationError builds an authorization failure attributed to an entity.
func NewEntityAuthorizationError(code ErrorCode, message string, entityType EntityType, entityID string) *AuthorizationError {
	return &AuthorizationError{Code: code, Message: message, EntityType: entityType, EntityID: entityID}
}

// NewAccountLockedError builds the failure returned when an account has an active lock.
func NewAccountLockedError(accountID string) *AuthorizationError {
	return NewEntityAuthorizationError(ErrorCodeAccountLocked,
		fmt.Sprintf("there is an active lock on account %s", accountID),
		EntityTypeAccount, accountID)
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authorization failed (%s)", e.Code)
	}
	return e.Message
}

// HasEntity reports whether the failure references an entity.
func (e *AuthorizationError) HasEntity() bool {
	return e.EntityType != "" && e.EntityID != ""
}

// Is allows errors.Is(err, ErrAuthorization) and errors.Is(err, ErrAccountLocked).
func (e *AuthorizationError) Is(target error) bool {
	switch target {
	case ErrAuthorization:
		return true
	case ErrAccountLocked:
		return e.Code == ErrorCodeAccountLocked
	}
	return false
}

// IdempotencyConflictError signals that a request with the same key already produced an entity.
type IdempotencyConflictError struct {
	Record IdempotentRecord
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotent key %q already used for %s %s",
		e.Record.IdempotentKey, e.Record.EntityType, e.Record.EntityID)
}

// Is allows errors.Is(err, ErrIdempotencyConflict).
func (e *IdempotencyConflictError) Is(target error) bool {
	return target == ErrIdempotencyConflict
}
