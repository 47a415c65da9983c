package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for exchange metrics.
const (
	OutcomeSuccess       = "success"
	OutcomeAuthorization = "authorization_failure"
	OutcomeUnknown       = "unknown_exchange"
	OutcomeError         = "error"
)

// ExchangeMetrics holds collectors describing the exchange engine.
// A nil *ExchangeMetrics is valid and records nothing.
type ExchangeMetrics struct {
	Exchanges               *prometheus.CounterVec
	Duration                *prometheus.HistogramVec
	IdempotentWriteFailures prometheus.Counter
}

// NewExchangeMetrics registers exchange collectors with reg, reusing collectors already registered.
func NewExchangeMetrics(reg prometheus.Registerer) (*ExchangeMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	exchanges, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iam",
		Name:      "exchange_total",
		Help:      "Exchange invocations partitioned by token types and outcome.",
	}, []string{"from", "to", "outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "iam",
		Name:      "exchange_duration_seconds",
		Help:      "Exchange latency in seconds partitioned by token types.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"from", "to"}))
	if err != nil {
		return nil, err
	}

	writeFailures, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iam",
		Subsystem: "idempotency",
		Name:      "record_write_failures_total",
		Help:      "Idempotent records that could not be persisted after the guarded operation succeeded.",
	}))
	if err != nil {
		return nil, err
	}

	return &ExchangeMetrics{
		Exchanges:               exchanges,
		Duration:                duration,
		IdempotentWriteFailures: writeFailures,
	}, nil
}

// ObserveExchange records one exchange outcome.
func (m *ExchangeMetrics) ObserveExchange(from, to, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(from, to, outcome).Inc()
	m.Duration.WithLabelValues(from, to).Observe(elapsed.Seconds())
}

// IdempotentWriteFailed counts a lost idempotent record.
func (m *ExchangeMetrics) IdempotentWriteFailed() {
	if m == nil {
		return
	}
	m.IdempotentWriteFailures.Inc()
}

// Register registers collector with reg, returning the collector already registered under the same descriptor.
func Register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}
