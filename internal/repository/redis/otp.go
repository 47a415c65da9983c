package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/repository"
)

const (
	defaultOTPPrefix = "iam:otp"
	// DefaultOTPGrace keeps expired codes readable after their expiry.
	DefaultOTPGrace = time.Hour

	fieldAccountID = "account_id"
	fieldCodeHash  = "code_hash"
	fieldClientID  = "client_id"
	fieldDeviceID  = "device_id"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// incrementAttempts bumps the counter only for codes that still exist, so an
// expired key is never recreated without a TTL.
var incrementAttempts = red.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`)

// OTPRepository persists one-time passwords as Redis hashes.
type OTPRepository struct {
	client red.UniversalClient
	keys   keyspace
	grace  time.Duration
	now    func() time.Time
}

// NewOTPRepository constructs an OTP repository with the provided Redis client and key prefix.
func NewOTPRepository(client red.UniversalClient, keyPrefix string) *OTPRepository {
	return &OTPRepository{
		client: client,
		keys:   newKeyspace(keyPrefix, defaultOTPPrefix),
		grace:  DefaultOTPGrace,
		now:    time.Now,
	}
}

// Save stores the code until its expiry plus the grace period.
func (r *OTPRepository) Save(ctx context.Context, otp domain.OneTimePassword) error {
	key := r.keys.key(otp.ID)
	if err := requireKey(key, "otp id"); err != nil {
		return err
	}

	switch {
	case strings.TrimSpace(otp.AccountID) == "":
		return errors.New("account id is required")
	case strings.TrimSpace(otp.CodeHash) == "":
		return errors.New("code hash is required")
	}

	ttl := otp.ExpiresAt.Add(r.grace).Sub(r.now())
	if ttl <= 0 {
		return errors.New("otp is past its grace period")
	}

	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			fieldAccountID: otp.AccountID,
			fieldCodeHash:  otp.CodeHash,
			fieldClientID:  otp.ClientID,
			fieldDeviceID:  otp.DeviceID,
			fieldCreatedAt: strconv.FormatInt(otp.CreatedAt.UTC().Unix(), 10),
			fieldExpiresAt: strconv.FormatInt(otp.ExpiresAt.UTC().Unix(), 10),
			fieldAttempts:  strconv.Itoa(otp.Attempts),
		})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store otp: %w", err)
	}

	return nil
}

// GetByID retrieves the OTP record.
func (r *OTPRepository) GetByID(ctx context.Context, id string) (*domain.OneTimePassword, error) {
	key := r.keys.key(id)
	if err := requireKey(key, "otp id"); err != nil {
		return nil, err
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall otp: %w", err)
	}
	if len(values) == 0 || strings.TrimSpace(values[fieldCodeHash]) == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &domain.OneTimePassword{
		ID:        strings.TrimSpace(id),
		AccountID: values[fieldAccountID],
		CodeHash:  values[fieldCodeHash],
		Attempts:  attempts,
		ClientID:  values[fieldClientID],
		DeviceID:  values[fieldDeviceID],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IncrementAttempts increments the attempt counter for the OTP and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	key := r.keys.key(id)
	if err := requireKey(key, "otp id"); err != nil {
		return 0, err
	}

	count, err := incrementAttempts.Run(ctx, r.client, []string{key}, fieldAttempts).Int()
	if err != nil {
		return 0, fmt.Errorf("redis increment otp attempts: %w", err)
	}
	if count < 0 {
		return 0, repository.ErrNotFound
	}
	return count, nil
}

// Delete removes the OTP entry, enforcing single-use semantics.
func (r *OTPRepository) Delete(ctx context.Context, id string) error {
	key := r.keys.key(id)
	if err := requireKey(key, "otp id"); err != nil {
		return err
	}

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete otp: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.OTPRepository = (*OTPRepository)(nil)
