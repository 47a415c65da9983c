package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iam",
	Subsystem: "bus",
	Name:      "publish_failures_total",
	Help:      "Messages that could not be handed to or delivered by Kafka",
}, []string{"topic"})
