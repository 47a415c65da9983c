package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/core/port"
	"github.com/arklim/iam-exchange/internal/infra/config"
)

const schemaVersion = "1.0"

// ErrProducerSaturated is returned when the producer input buffer is full.
var ErrProducerSaturated = errors.New("kafka producer input is saturated")

// MessageBus implements port.MessageBus on top of the async producer.
// Publish only enqueues; broker acknowledgements are never awaited.
type MessageBus struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewMessageBus constructs a Kafka-backed message bus.
func NewMessageBus(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *MessageBus {
	return &MessageBus{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	EntityID  string           `json:"entity_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type authPayload struct {
	ExchangeFrom string    `json:"exchange_from"`
	ExchangeTo   string    `json:"exchange_to"`
	EntityType   string    `json:"entity_type,omitempty"`
	EntityID     string    `json:"entity_id,omitempty"`
	Successful   bool      `json:"successful"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type entityCreatedPayload struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Timestamp  time.Time `json:"timestamp"`
}

type otpGeneratedPayload struct {
	PasswordID string    `json:"password_id"`
	AccountID  string    `json:"account_id"`
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func encodePayload(payload any) any {
	switch p := payload.(type) {
	case domain.AuthMessage:
		return authPayload{
			ExchangeFrom: p.ExchangeFrom,
			ExchangeTo:   p.ExchangeTo,
			EntityType:   string(p.EntityType),
			EntityID:     p.EntityID,
			Successful:   p.Successful,
			Error:        p.Error,
			Timestamp:    p.Timestamp.UTC(),
		}
	case domain.EntityCreatedMessage:
		return entityCreatedPayload{
			EntityType: string(p.EntityType),
			EntityID:   p.EntityID,
			Timestamp:  p.Timestamp.UTC(),
		}
	case domain.OTPGeneratedMessage:
		return otpGeneratedPayload{
			PasswordID: p.PasswordID,
			AccountID:  p.AccountID,
			Code:       p.Code,
			ExpiresAt:  p.ExpiresAt.UTC(),
		}
	default:
		return payload
	}
}

// Publish enqueues the message on the topic derived from channel.
func (b *MessageBus) Publish(ctx context.Context, channel string, message domain.Message) error {
	ts := message.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := message.EventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     b.appCfg.Name,
		"environment": b.appCfg.Env,
		"channel":     channel,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: message.EventType,
		EntityID:  message.EntityID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   encodePayload(message.Payload),
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	topic := b.producer.TopicName(channel)
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
	if message.EntityID != "" {
		msg.Key = sarama.StringEncoder(message.EntityID)
	}

	select {
	case b.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		publishFailures.WithLabelValues(topic).Inc()
		return ErrProducerSaturated
	}
}

var _ port.MessageBus = (*MessageBus)(nil)
