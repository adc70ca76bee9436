package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Alert sinks
const (
	SinkLog     = "log"
	SinkKafka   = "kafka"
	SinkWebhook = "webhook"
	SinkMQTT    = "mqtt"
)

// Config holds runtime configuration for the service.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Readings ReadingsConfig `yaml:"readings"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodySize  int64         `yaml:"max_body_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	// Backend: memory, file or postgres
	Backend     string `yaml:"backend"`
	FilePath    string `yaml:"file_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// CacheConfig enables a redis read-through cache in front of the store
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
}

type AlertsConfig struct {
	// Sinks every alert is delivered to
	Sinks   []string            `yaml:"sinks"`
	Kafka   KafkaProducerConfig `yaml:"kafka"`
	Webhook WebhookConfig       `yaml:"webhook"`
	MQTT    MQTTConfig          `yaml:"mqtt"`
}

// KafkaProducerConfig tunes the alert producer
type KafkaProducerConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	Compression  string        `yaml:"compression"` // none, gzip, snappy, lz4, zstd
	RequiredAcks int           `yaml:"required_acks"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"` // writer-level delivery attempts per alert
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ReadingsConfig configures the kafka readings consumer
type ReadingsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodySize:  1 << 20, // 1MB
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			TTL:       5 * time.Minute,
		},
		Alerts: AlertsConfig{
			Sinks: []string{SinkLog},
			Kafka: KafkaProducerConfig{
				Brokers:      []string{"localhost:9092"},
				Topic:        "vitals.alerts",
				Compression:  "snappy",
				RequiredAcks: -1,
				WriteTimeout: 10 * time.Second,
				BatchTimeout: 10 * time.Millisecond,
				MaxAttempts:  3,
			},
			Webhook: WebhookConfig{Timeout: 5 * time.Second},
			MQTT: MQTTConfig{
				ClientID: "vitalwatch-alerts",
				Topic:    "vitals/alerts",
				QoS:      1,
				Timeout:  5 * time.Second,
			},
		},
		Readings: ReadingsConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "vitals.readings",
			GroupID: "vitalwatch",
		},
	}
}

// Load reads a YAML file over the defaults and applies env overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VITALWATCH_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("VITALWATCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VITALWATCH_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("VITALWATCH_PATIENTS_FILE"); v != "" {
		c.Storage.FilePath = v
	}
	if v := os.Getenv("VITALWATCH_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("VITALWATCH_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("VITALWATCH_KAFKA_BROKERS"); v != "" {
		brokers := splitCSV(v)
		c.Alerts.Kafka.Brokers = brokers
		c.Readings.Brokers = brokers
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrUnknownSink    = errors.New("unknown alert sink")
	ErrMissingField   = errors.New("missing required config field")
)

// Validate checks the chosen backend and sinks have what they need
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("%w: http.addr", ErrMissingField)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.FilePath == "" {
			return fmt.Errorf("%w: storage.file_path", ErrMissingField)
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn", ErrMissingField)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("%w: cache.redis_addr", ErrMissingField)
	}

	if len(c.Alerts.Sinks) == 0 {
		return fmt.Errorf("%w: alerts.sinks", ErrMissingField)
	}
	for _, sink := range c.Alerts.Sinks {
		switch sink {
		case SinkLog:
		case SinkKafka:
			if len(c.Alerts.Kafka.Brokers) == 0 || c.Alerts.Kafka.Topic == "" {
				return fmt.Errorf("%w: alerts.kafka.brokers/topic", ErrMissingField)
			}
		case SinkWebhook:
			if c.Alerts.Webhook.URL == "" {
				return fmt.Errorf("%w: alerts.webhook.url", ErrMissingField)
			}
		case SinkMQTT:
			if c.Alerts.MQTT.Broker == "" || c.Alerts.MQTT.Topic == "" {
				return fmt.Errorf("%w: alerts.mqtt.broker/topic", ErrMissingField)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSink, sink)
		}
	}

	if c.Readings.Enabled {
		if len(c.Readings.Brokers) == 0 || c.Readings.Topic == "" || c.Readings.GroupID == "" {
			return fmt.Errorf("%w: readings.brokers/topic/group_id", ErrMissingField)
		}
	}

	return nil
}
