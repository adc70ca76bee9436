package processor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"vitalwatch/internal/alerts"
	"vitalwatch/internal/config"
	"vitalwatch/internal/kafka"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/medical"
	"vitalwatch/internal/state"
	"vitalwatch/internal/storage"
)

// healthChecker is implemented by components that can report liveness
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Components holds the store, sinks and checker built from config.
// Close releases everything that was opened.
type Components struct {
	Store    storage.PatientStore
	Sender   *alerts.MultiSender
	Checker  *medical.Checker
	Producer *kafka.Producer // nil unless the kafka sink is enabled

	health  map[string]healthChecker
	closers []io.Closer
}

// Open builds the patient store and alert sinks described by cfg
func Open(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{health: make(map[string]healthChecker)}

	store, err := c.openStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = store

	sender, err := c.openSinks(cfg.Alerts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Sender = sender

	c.Checker = medical.NewChecker(c.Store, c.Sender)
	return c, nil
}

func (c *Components) openStore(ctx context.Context, cfg *config.Config) (storage.PatientStore, error) {
	log := logger.WithComponent("processor")

	var store storage.PatientStore
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		ms := storage.NewMemoryStore()
		if ms.Len() == 0 {
			log.Warn().Msg("memory patient store is empty, every lookup will return not found; use the file or postgres backend")
		}
		store = ms
	case config.BackendFile:
		fs, err := storage.NewFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, err
		}
		store = fs
	case config.BackendPostgres:
		pg, err := storage.NewPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		c.register("postgres", pg)
		store = pg
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Storage.Backend)
	}

	if cfg.Cache.Enabled {
		cache, err := state.NewRedisStore(ctx, state.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Info().Str("redis_addr", cfg.Cache.RedisAddr).Dur("ttl", cfg.Cache.TTL).Msg("patient cache enabled")
		store = storage.NewCachedStore(store, cache, cfg.Cache.TTL)
	}

	c.closers = append(c.closers, store)
	log.Info().Str("backend", cfg.Storage.Backend).Msg("patient store ready")
	return store, nil
}

func (c *Components) openSinks(cfg config.AlertsConfig) (*alerts.MultiSender, error) {
	log := logger.WithComponent("processor")

	sinks := make([]alerts.Sender, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, alerts.NewLogSender())

		case config.SinkKafka:
			producer, err := kafka.NewProducer(cfg.Kafka)
			if err != nil {
				return nil, fmt.Errorf("kafka sink: %w", err)
			}
			c.Producer = producer
			c.register("kafka", producer)
			c.closers = append(c.closers, producer)
			sinks = append(sinks, producer)
			log.Info().
				Strs("brokers", cfg.Kafka.Brokers).
				Str("topic", cfg.Kafka.Topic).
				Msg("kafka alert producer initialized")

		case config.SinkWebhook:
			webhook, err := alerts.NewWebhookSender(alerts.WebhookConfig{
				URL:     cfg.Webhook.URL,
				Timeout: cfg.Webhook.Timeout,
				Headers: cfg.Webhook.Headers,
			})
			if err != nil {
				return nil, fmt.Errorf("webhook sink: %w", err)
			}
			sinks = append(sinks, webhook)

		case config.SinkMQTT:
			m, err := alerts.NewMQTTSender(alerts.MQTTConfig{
				Broker:   cfg.MQTT.Broker,
				ClientID: cfg.MQTT.ClientID,
				Username: cfg.MQTT.Username,
				Password: cfg.MQTT.Password,
				Topic:    cfg.MQTT.Topic,
				QoS:      cfg.MQTT.QoS,
				Timeout:  cfg.MQTT.Timeout,
			})
			if err != nil {
				return nil, fmt.Errorf("mqtt sink: %w", err)
			}
			c.closers = append(c.closers, m)
			sinks = append(sinks, m)

		default:
			return nil, fmt.Errorf("%w: %q", config.ErrUnknownSink, name)
		}
	}

	log.Info().Strs("sinks", cfg.Sinks).Msg("alert sinks ready")
	return alerts.NewMultiSender(sinks...)
}

// register adds a component to HealthCheck
func (c *Components) register(name string, hc healthChecker) {
	c.health[name] = hc
}

// HealthCheck runs every registered component check
func (c *Components) HealthCheck(ctx context.Context) error {
	var errs []error
	for name, hc := range c.health {
		if err := hc.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes opened components in reverse order
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
