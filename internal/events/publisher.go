// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-checkpoint-service/internal/observability/metrics"
)

// DefaultPublishTimeout bounds a single publish when Config.PublishTimeout is
// not set.
const DefaultPublishTimeout = 2 * time.Second

// Publisher publishes job progress and finalized transcripts to separate
// Kafka topics.
type Publisher struct {
	writerCheckpoint *kafka.Writer
	writerTranscript *kafka.Writer
	principal        string
	topicCheckpoint  string
	topicTranscript  string
	enabled          bool
	timeout          time.Duration
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicCheckpoint string
	TopicTranscript string
	Principal       string
	Enabled         bool
	// PublishTimeout bounds each write, retries included. Zero means
	// DefaultPublishTimeout.
	PublishTimeout time.Duration
}

// New creates a new Kafka event publisher. With Kafka disabled, events are
// only logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicCheckpoint: cfg.TopicCheckpoint,
			topicTranscript: cfg.TopicTranscript,
			enabled:         false,
			metrics:         m,
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

	// Checkpoint events are frequent and small
	writerCheckpoint := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicCheckpoint,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerTranscript := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicTranscript,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCheckpoint", cfg.TopicCheckpoint).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("principal", cfg.Principal).
		Dur("publishTimeout", timeout).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCheckpoint: writerCheckpoint,
		writerTranscript: writerTranscript,
		principal:        cfg.Principal,
		topicCheckpoint:  cfg.TopicCheckpoint,
		topicTranscript:  cfg.TopicTranscript,
		enabled:          true,
		timeout:          timeout,
		metrics:          m,
	}
}

// PublishCheckpoint publishes a checkpoint event keyed by job key.
func (p *Publisher) PublishCheckpoint(ctx context.Context, key string, event any) error {
	if p == nil {
		return nil
	}
	return p.publish(ctx, p.writerCheckpoint, p.topicCheckpoint, "checkpoint", key, event)
}

// PublishTranscript publishes a finalized transcript event keyed by job key.
func (p *Publisher) PublishTranscript(ctx context.Context, key string, event any) error {
	if p == nil {
		return nil
	}
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, "transcript", key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	// Log the event
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

	// Publish to Kafka
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

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

// Close closes both Kafka writers. Safe on a nil publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var err error
	if p.writerCheckpoint != nil {
		if e := p.writerCheckpoint.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing checkpoint writer")
			err = e
		}
	}
	if p.writerTranscript != nil {
		if e := p.writerTranscript.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			err = e
		}
	}
	return err
}
