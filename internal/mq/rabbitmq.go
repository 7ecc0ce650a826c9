package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eduaventuras/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPublishNacked is returned when the broker refuses a published message.
var ErrPublishNacked = errors.New("rabbitmq: broker did not confirm the message")

// RabbitMQClient publishes to and consumes from named queues on the default
// exchange. Publishes wait for a broker confirm; each Subscribe call consumes
// on its own channel.
type RabbitMQClient struct {
	conn            *amqp.Connection
	queueDurable    bool
	queueAutoDelete bool
	prefetchCount   int
	now             func() time.Time

	mu       sync.Mutex
	publish  *amqp.Channel
	declared map[string]bool
}

// NewRabbitMQClient dials the broker and opens a confirming publish channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &RabbitMQClient{
		conn:            conn,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		prefetchCount:   cfg.PrefetchCount,
		now:             time.Now,
		publish:         ch,
		declared:        make(map[string]bool),
	}, nil
}

// Publish sends a message to the named queue and waits for the broker confirm.
// Messages whose expires-at attribute has passed are not sent.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	msg, err := buildPublishing(data, attrs, r.queueDurable, r.now())
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureQueue(r.publish, channel); err != nil {
		return "", err
	}
	confirm, err := r.publish.PublishWithDeferredConfirmWithContext(ctx, "", channel, false, false, msg)
	if err != nil {
		return "", err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", err
	}
	if !acked {
		return "", ErrPublishNacked
	}
	return msg.MessageId, nil
}

// Subscribe consumes the named queue until ctx is done. A failed message is
// requeued once and dropped when its redelivery fails too.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer func() {
		_ = ch.Close()
	}()
	if r.prefetchCount > 0 {
		if err := ch.Qos(r.prefetchCount, 0, false); err != nil {
			return err
		}
	}
	if _, err := r.declareQueue(ch, channel); err != nil {
		return err
	}

	consumerTag := "eduaventuras-" + newMessageID()
	deliveries, err := ch.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = ch.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryMessage(delivery)); err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the publish channel and the connection. Consumer channels
// close with their Subscribe call.
func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publish != nil {
		_ = r.publish.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) ensureQueue(ch *amqp.Channel, name string) error {
	if r.declared[name] {
		return nil
	}
	if _, err := r.declareQueue(ch, name); err != nil {
		return err
	}
	r.declared[name] = true
	return nil
}

func (r *RabbitMQClient) declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		r.queueDurable,
		r.queueAutoDelete,
		false,
		false,
		nil,
	)
}

// buildPublishing maps broker-agnostic attributes onto AMQP properties. The
// content type travels as a property and expires-at becomes a per-message TTL.
func buildPublishing(data []byte, attrs map[string]string, durable bool, now time.Time) (amqp.Publishing, error) {
	msg := amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Transient,
		MessageId:    newMessageID(),
		Timestamp:    now,
		Headers:      amqp.Table{},
		Body:         data,
	}
	if durable {
		msg.DeliveryMode = amqp.Persistent
	}
	for key, value := range attrs {
		switch key {
		case attrContentType:
			msg.ContentType = value
		case attrExpiresAt:
			expiresAt, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return amqp.Publishing{}, fmt.Errorf("invalid %s attribute: %w", attrExpiresAt, err)
			}
			ttl := expiresAt.Sub(now)
			if ttl <= 0 {
				return amqp.Publishing{}, fmt.Errorf("message expired at %s", value)
			}
			msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
			msg.Headers[key] = value
		default:
			msg.Headers[key] = value
		}
	}
	return msg, nil
}

func deliveryMessage(delivery amqp.Delivery) Message {
	attrs := headersToAttributes(delivery.Headers)
	if delivery.ContentType != "" {
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs[attrContentType] = delivery.ContentType
	}
	return Message{
		ID:         delivery.MessageId,
		Data:       delivery.Body,
		Attributes: attrs,
	}
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
