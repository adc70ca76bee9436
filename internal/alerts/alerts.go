package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vitalwatch/internal/logger"
	"vitalwatch/internal/metrics"
)

var (
	ErrEmptyMessage = errors.New("alert message cannot be empty")
	ErrNoSinks      = errors.New("at least one alert sink is required")
	ErrDelivery     = errors.New("alert delivery failed")
)

// Sender delivers an alert message to one destination
type Sender interface {
	Send(ctx context.Context, message string) error
}

// Named is implemented by senders that report a sink name for metrics
type Named interface {
	Name() string
}

// alertPayload is the JSON body used by network sinks
type alertPayload struct {
	Source  string    `json:"source"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func newPayload(message string) alertPayload {
	return alertPayload{Source: "vitalwatch", Message: message, SentAt: time.Now().UTC()}
}

// observe records the outcome of one delivery attempt
func observe(sink string, start time.Time, err error) {
	metrics.AlertSendDuration.WithLabelValues(sink).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AlertsTotal.WithLabelValues(sink, "failed").Inc()
		return
	}
	metrics.AlertsTotal.WithLabelValues(sink, "sent").Inc()
}

func validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// LogSender writes alerts to the structured log
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender creates a sender logging through the global logger
func NewLogSender() *LogSender {
	return &LogSender{log: logger.WithComponent("alert_log")}
}

// NewLogSenderWithLogger creates a sender logging through l
func NewLogSenderWithLogger(l zerolog.Logger) *LogSender {
	return &LogSender{log: l}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, message string) error {
	start := time.Now()
	if err := validateMessage(message); err != nil {
		observe(s.Name(), start, err)
		return err
	}

	s.log.Warn().Str("alert", message).Msg("vital sign alert")
	observe(s.Name(), start, nil)
	return nil
}

// MultiSender fans one alert out to every sink.
// All sinks are attempted; failures are joined under ErrDelivery.
type MultiSender struct {
	sinks []Sender
}

// NewMultiSender creates a fan-out sender
func NewMultiSender(sinks ...Sender) (*MultiSender, error) {
	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}
	return &MultiSender{sinks: sinks}, nil
}

func (m *MultiSender) Send(ctx context.Context, message string) error {
	log := logger.WithComponent("alerts")

	var errs []error
	for i, sink := range m.sinks {
		if err := sink.Send(ctx, message); err != nil {
			name := fmt.Sprintf("sink-%d", i)
			if n, ok := sink.(Named); ok {
				name = n.Name()
			}
			log.Error().Err(err).Str("sink", name).Msg("alert delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
}

// Len returns the number of sinks
func (m *MultiSender) Len() int {
	return len(m.sinks)
}
