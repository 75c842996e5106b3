package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driveclone/apiserver/config"
)

// ErrDisabled is returned by Subscribe when no broker is configured.
var ErrDisabled = errors.New("message queue disabled")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
	enabled bool
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend, enabled: true}
}

// Open connects to the broker named by cfg.Driver. The "none" driver yields
// an MQ that drops published messages.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	switch cfg.Driver {
	case "", "none":
		return &MQ{backend: discardBackend{}}, nil
	case "rabbitmq":
		backend, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return New(backend), nil
	case "pubsub":
		backend, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq driver %q", cfg.Driver)
	}
}

// Enabled reports whether messages reach a real broker.
func (m *MQ) Enabled() bool {
	return m.enabled
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON encodes v and publishes it with a JSON content type.
func (m *MQ) PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	merged := make(map[string]string, len(attrs)+1)
	for key, value := range attrs {
		merged[key] = value
	}
	merged[AttrContentType] = "application/json"
	return m.backend.Publish(ctx, channel, data, merged)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// AttrContentType is the attribute carrying the payload media type.
const AttrContentType = "content_type"

type discardBackend struct{}

func (discardBackend) Publish(context.Context, string, []byte, map[string]string) (string, error) {
	return "", nil
}

func (discardBackend) Subscribe(context.Context, string, Handler) error {
	return ErrDisabled
}

func (discardBackend) Close() error {
	return nil
}
