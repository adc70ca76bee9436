package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"vitalwatch/internal/config"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/metrics"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
	ErrEmptyMessage    = errors.New("alert message cannot be empty")
)

// messageWriter is the subset of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.WriterStats
	Close() error
}

// AlertRecord is the JSON value written for each alert
type AlertRecord struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
	Node    string    `json:"node"`
}

// Producer publishes alerts to a Kafka topic
type Producer struct {
	topic  string
	node   string
	writer messageWriter
	closed atomic.Bool

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithNode overrides the node name stamped on every record
func WithNode(node string) ProducerOption {
	return func(p *Producer) { p.node = node }
}

// withWriter swaps the underlying writer
func withWriter(w messageWriter) ProducerOption {
	return func(p *Producer) { p.writer = w }
}

// NewProducer creates an alert producer for cfg.Topic
func NewProducer(cfg config.KafkaProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	node, _ := os.Hostname()
	if node == "" {
		node = "unknown"
	}

	p := &Producer{
		topic: cfg.Topic,
		node:  node,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  getCompression(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			Async:        false, // Sync so Send reports delivery
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func (p *Producer) Name() string { return "kafka" }

// Send publishes one alert. Delivery retries are left to the writer's MaxAttempts.
func (p *Producer) Send(ctx context.Context, message string) error {
	start := time.Now()
	err := p.send(ctx, message)

	metrics.AlertSendDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		p.messagesFailed.Add(1)
		metrics.AlertsTotal.WithLabelValues(p.Name(), "failed").Inc()
		return err
	}
	p.messagesSent.Add(1)
	metrics.AlertsTotal.WithLabelValues(p.Name(), "sent").Inc()
	return nil
}

func (p *Producer) send(ctx context.Context, message string) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if message == "" {
		return ErrEmptyMessage
	}

	log := logger.WithComponent("kafka_producer")
	now := time.Now().UTC()

	data, err := json.Marshal(AlertRecord{Message: message, SentAt: now, Node: p.node})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	msg := kafka.Message{
		Key:   []byte(p.node),
		Value: data,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte("vitalwatch")},
			{Key: "node", Value: []byte(p.node)},
		},
		Time: now,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", p.topic).
			Msg("failed to publish alert to kafka")
		return fmt.Errorf("publish alert: %w", err)
	}

	p.bytesWritten.Add(uint64(len(data)))
	log.Debug().Str("topic", p.topic).Int("bytes", len(data)).Msg("alert published")
	return nil
}

// Close closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}
	return p.writer.Close()
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

// HealthCheck reports whether the producer can still publish
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Reading writer stats does not touch the network
	_ = p.writer.Stats()
	return nil
}
