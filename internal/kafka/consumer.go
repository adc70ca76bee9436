package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"vitalwatch/internal/config"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/models"
)

// ErrConsumerStopped is reported by HealthCheck once Start has failed
var ErrConsumerStopped = errors.New("readings consumer stopped")

// ReadingChecker runs one reading through the vitals checks
type ReadingChecker interface {
	Check(ctx context.Context, r *models.Reading) error
}

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads readings from a topic and checks them one at a time.
// Every fetched message is committed once handled, whatever the outcome.
type Consumer struct {
	reader  messageReader
	checker ReadingChecker

	checked atomic.Uint64
	invalid atomic.Uint64
	failed  atomic.Uint64

	mu      sync.Mutex
	stopErr error
}

// NewConsumer creates a consumer group reader for cfg.Topic
func NewConsumer(cfg config.ReadingsConfig, checker ReadingChecker) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("topic and group id are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})

	return newConsumer(reader, checker), nil
}

func newConsumer(reader messageReader, checker ReadingChecker) *Consumer {
	return &Consumer{reader: reader, checker: checker}
}

// Start consumes until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	log := logger.WithComponent("readings_consumer")
	log.Info().Msg("readings consumer started")
	defer log.Info().Msg("readings consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("fetch reading: %w", err)
			c.mu.Lock()
			c.stopErr = err
			c.mu.Unlock()
			return err
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit reading")
		}
	}
}

// handle decodes and checks one message
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := logger.WithComponent("readings_consumer").With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("reading handler panic recovered")
			metrics.PanicsRecovered.WithLabelValues("readings_consumer").Inc()
			c.failed.Add(1)
		}
	}()

	var reading models.Reading
	if err := json.Unmarshal(msg.Value, &reading); err != nil {
		log.Warn().Err(err).Msg("discarding undecodable reading")
		c.invalid.Add(1)
		metrics.ReadingsConsumed.WithLabelValues("invalid").Inc()
		return
	}

	reading.Normalize()
	if err := reading.Validate(); err != nil {
		log.Warn().Err(err).Str("patient_id", reading.PatientID).Msg("discarding invalid reading")
		c.invalid.Add(1)
		metrics.ReadingsConsumed.WithLabelValues("invalid").Inc()
		return
	}

	if err := c.checker.Check(ctx, &reading); err != nil {
		log.Error().Err(err).Str("patient_id", reading.PatientID).Msg("reading check failed")
		c.failed.Add(1)
		metrics.ReadingsConsumed.WithLabelValues("failed").Inc()
		return
	}

	c.checked.Add(1)
	metrics.ReadingsConsumed.WithLabelValues("checked").Inc()
}

// HealthCheck fails once Start has returned with an error
func (c *Consumer) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopErr != nil {
		return fmt.Errorf("%w: %v", ErrConsumerStopped, c.stopErr)
	}
	return nil
}

// Stop closes the reader
func (c *Consumer) Stop() error {
	return c.reader.Close()
}

// Stats returns consumer counters
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Checked: c.checked.Load(),
		Invalid: c.invalid.Load(),
		Failed:  c.failed.Load(),
	}
}

// ConsumerStats holds consumer counters
type ConsumerStats struct {
	Checked uint64 `json:"checked"`
	Invalid uint64 `json:"invalid"`
	Failed  uint64 `json:"failed"`
}
