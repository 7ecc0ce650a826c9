package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eduaventuras/apiserver/config"
)

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

const (
	attrKind        = "kind"
	attrContentType = "content-type"
	attrExpiresAt   = "expires-at"
	kindRecovery    = "password-recovery"
)

// RecoveryMessage carries a recovery token to the mailer. It never leaves the
// broker through the HTTP API.
type RecoveryMessage struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
	Language  string    `json:"language,omitempty"`
}

// MQ wraps a backend and the channel recovery messages travel on.
type MQ struct {
	backend         Backend
	recoveryChannel string
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend, recoveryChannel string) *MQ {
	return &MQ{backend: backend, recoveryChannel: recoveryChannel}
}

// Open selects the backend named in cfg.MQ.Backend.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.MQ.Backend {
	case "", "memory":
		backend = NewMemoryBackend(0)
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.MQ.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, cfg.MQ.RecoveryChannel), nil
}

// Backend exposes the underlying broker client.
func (m *MQ) Backend() Backend {
	return m.backend
}

// RecoveryChannel returns the channel recovery messages are published on.
func (m *MQ) RecoveryChannel() string {
	return m.recoveryChannel
}

// PublishRecovery enqueues a recovery message for out-of-band delivery.
func (m *MQ) PublishRecovery(ctx context.Context, msg RecoveryMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	attrs := map[string]string{
		attrKind:        kindRecovery,
		attrContentType: "application/json",
	}
	if !msg.ExpiresAt.IsZero() {
		attrs[attrExpiresAt] = msg.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return m.backend.Publish(ctx, m.recoveryChannel, data, attrs)
}

// SubscribeRecovery consumes recovery messages until ctx is done.
func (m *MQ) SubscribeRecovery(ctx context.Context, handle func(ctx context.Context, msg RecoveryMessage) error) error {
	return m.backend.Subscribe(ctx, m.recoveryChannel, func(ctx context.Context, raw Message) error {
		msg, err := DecodeRecovery(raw)
		if err != nil {
			// Malformed payloads are dropped; redelivery cannot fix them.
			return nil
		}
		return handle(ctx, msg)
	})
}

// DecodeRecovery parses a recovery message.
func DecodeRecovery(raw Message) (RecoveryMessage, error) {
	var msg RecoveryMessage
	if kind := raw.Attributes[attrKind]; kind != "" && kind != kindRecovery {
		return msg, fmt.Errorf("unexpected message kind %q", kind)
	}
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return msg, fmt.Errorf("decode recovery message: %w", err)
	}
	if msg.Email == "" || msg.Token == "" {
		return msg, fmt.Errorf("recovery message %s is incomplete", raw.ID)
	}
	return msg, nil
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
