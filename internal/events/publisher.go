// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-doll-conversation-service/internal/models"
	"ai-doll-conversation-service/internal/observability/metrics"
	"ai-doll-conversation-service/internal/schema"
)

// Publisher publishes conversation turn events. Completed turns and failed
// turns go to separate Kafka topics.
type Publisher struct {
	writerTurns    *kafka.Writer
	writerFailures *kafka.Writer
	principal      string
	topicTurns     string
	topicFailures  string
	enabled        bool
	validator      *schema.Validator
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicTurns    string
	TopicFailures string
	Principal     string
	Enabled       bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: v,
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicTurns:    cfg.TopicTurns,
			topicFailures: cfg.TopicFailures,
			enabled:       false,
			validator:     v,
			metrics:       m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTurns", cfg.TopicTurns).
		Str("topicFailures", cfg.TopicFailures).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTurns:    newWriter(cfg.Brokers, cfg.TopicTurns, transport),
		writerFailures: newWriter(cfg.Brokers, cfg.TopicFailures, transport),
		principal:      cfg.Principal,
		topicTurns:     cfg.TopicTurns,
		topicFailures:  cfg.TopicFailures,
		enabled:        true,
		validator:      v,
		metrics:        m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // keyed by child so one child's turns stay ordered
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishTurn validates event and publishes it keyed by child id.
func (p *Publisher) PublishTurn(ctx context.Context, event models.TurnEvent) error {
	if err := p.validator.ValidateTurn(event); err != nil {
		log.Error().Err(err).Str("turnId", event.TurnID).Msg("Dropping invalid turn event")
		return err
	}

	if event.EventType == models.EventTypeTurnFailed {
		return p.publish(ctx, p.writerFailures, p.topicFailures, "failed", event.ChildID, event)
	}
	return p.publish(ctx, p.writerTurns, p.topicTurns, "completed", event.ChildID, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	if p.writerFailures != nil {
		if e := p.writerFailures.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing failures writer")
			err = e
		}
	}
	return err
}
