package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
)

const redactedCode = "******"

// LogBus logs messages instead of sending them to Kafka. Used when no brokers are configured.
type LogBus struct {
	logger *zap.Logger
}

// NewLogBus constructs a development-friendly message bus.
func NewLogBus(logger *zap.Logger) *LogBus {
	return &LogBus{logger: logger}
}

func (b *LogBus) Publish(_ context.Context, channel string, message domain.Message) error {
	at := message.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	payload := encodePayload(message.Payload)
	if otp, ok := payload.(otpGeneratedPayload); ok {
		otp.Code = redactedCode
		payload = otp
	}

	b.logger.Info("message published",
		zap.String("channel", channel),
		zap.String("event_type", message.EventType),
		zap.String("entity_id", message.EntityID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
	return nil
}

var _ port.MessageBus = (*LogBus)(nil)
