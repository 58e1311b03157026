// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "doll_conversation"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Turn metrics
	TurnsTotal    prometheus.Counter
	TurnsActive   prometheus.Gauge
	TurnOutcomes  *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	TurnFailures  *prometheus.CounterVec
	AuthFailures  prometheus.Counter
	ApologyServed prometheus.Counter

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	AudioBytesSent     prometheus.Counter

	// Capability metrics
	CapabilityLatency *prometheus.HistogramVec
	CapabilityErrors  *prometheus.CounterVec
	CapabilityRetries *prometheus.CounterVec

	// Memory metrics
	MemoryRecallHits prometheus.Histogram
	MemoryWrites     prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	HealthChecks *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns submitted",
		}),
		TurnsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turns_active",
			Help:      "Number of conversation turns currently in flight",
		}),
		TurnOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Conversation turns by final status",
		}, []string{"status"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end duration of a conversation turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		TurnFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_failures_total",
			Help:      "Failed turns by stage and capability",
		}, []string{"stage", "capability"}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Requests rejected by the hardware token gate",
		}),
		ApologyServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apology_served_total",
			Help:      "Turns answered with the apology clip",
		}),

		AudioBytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes uploaded by devices",
		}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes streamed back to devices",
		}),

		CapabilityLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_latency_seconds",
			Help:      "Latency of external capability calls including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"capability"}),
		CapabilityErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_errors_total",
			Help:      "External capability calls that surfaced a service failure",
		}, []string{"capability", "error_type"}),
		CapabilityRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_retries_total",
			Help:      "Retries performed inside capability boundaries",
		}, []string{"capability"}),

		MemoryRecallHits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_recall_hits",
			Help:      "Number of past turns returned per recall",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		MemoryWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Conversation turns persisted to the vector store",
		}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GRPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by service kind, method and status code",
		}, []string{"kind", "method", "code"}),

		HealthChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "gRPC health checks by reported serving status",
		}, []string{"status"}),
	}
}

// RecordTurnStart records a new turn entering the pipeline.
func (m *Metrics) RecordTurnStart(audioBytes int) {
	m.TurnsTotal.Inc()
	m.TurnsActive.Inc()
	m.AudioBytesReceived.Add(float64(audioBytes))
}

// RecordTurnEnd records a turn leaving the pipeline.
func (m *Metrics) RecordTurnEnd(status string, audioBytes int, durationSeconds float64) {
	m.TurnsActive.Dec()
	m.TurnDuration.Observe(durationSeconds)
	m.TurnOutcomes.WithLabelValues(status).Inc()
	m.AudioBytesSent.Add(float64(audioBytes))
}

// RecordTurnFailure records the stage and capability a turn failed at.
func (m *Metrics) RecordTurnFailure(stage, capability string) {
	m.TurnFailures.WithLabelValues(stage, capability).Inc()
}

// RecordAuthFailure records a rejected hardware token.
func (m *Metrics) RecordAuthFailure() {
	m.AuthFailures.Inc()
}

// RecordApology records an apology clip being served.
func (m *Metrics) RecordApology() {
	m.ApologyServed.Inc()
}

// RecordCapabilityCall records one capability call, its retries and outcome.
func (m *Metrics) RecordCapabilityCall(capability string, retries int, errorType string, latencySeconds float64) {
	m.CapabilityLatency.WithLabelValues(capability).Observe(latencySeconds)
	if retries > 0 {
		m.CapabilityRetries.WithLabelValues(capability).Add(float64(retries))
	}
	if errorType != "" {
		m.CapabilityErrors.WithLabelValues(capability, errorType).Inc()
	}
}

// RecordRecall records how many past turns a recall returned.
func (m *Metrics) RecordRecall(hits int) {
	m.MemoryRecallHits.Observe(float64(hits))
}

// RecordMemoryWrite records a persisted turn.
func (m *Metrics) RecordMemoryWrite() {
	m.MemoryWrites.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCRequest records a gRPC request.
func (m *Metrics) RecordGRPCRequest(kind, method, code string) {
	m.GRPCRequests.WithLabelValues(kind, method, code).Inc()
}

// RecordHealthCheck records the serving status a health check reported.
func (m *Metrics) RecordHealthCheck(status string) {
	m.HealthChecks.WithLabelValues(status).Inc()
}
