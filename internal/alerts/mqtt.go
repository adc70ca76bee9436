package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrMQTTBroker  = errors.New("mqtt broker is required")
	ErrMQTTTopic   = errors.New("mqtt topic is required")
	ErrMQTTTimeout = errors.New("mqtt publish timed out")
)

// MQTTConfig configures an MQTTSender
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

// publisher is the part of mqtt.Client used for alerts
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSender publishes alerts to an MQTT topic
type MQTTSender struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTSender connects to the broker
func NewMQTTSender(cfg MQTTConfig) (*MQTTSender, error) {
	if cfg.Broker == "" {
		return nil, ErrMQTTBroker
	}
	if cfg.Topic == "" {
		return nil, ErrMQTTTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "vitalwatch-alerts"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, err)
	}

	return newMQTTSender(client, cfg), nil
}

func newMQTTSender(client publisher, cfg MQTTConfig) *MQTTSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTTSender{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
	}
}

func (s *MQTTSender) Name() string { return "mqtt" }

func (s *MQTTSender) Send(ctx context.Context, message string) error {
	start := time.Now()
	err := s.send(ctx, message)
	observe(s.Name(), start, err)
	return err
}

func (s *MQTTSender) send(ctx context.Context, message string) error {
	if err := validateMessage(message); err != nil {
		return err
	}

	payload, err := json.Marshal(newPayload(message))
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrMQTTTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker
func (s *MQTTSender) Close() error {
	s.client.Disconnect(250)
	return nil
}
