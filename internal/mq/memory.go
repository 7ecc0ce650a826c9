package mq

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultMemoryBuffer = 256

// MemoryBackend is an in-process broker with one bounded queue per channel.
// Each message is delivered to a single consumer.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	buffer int
	nextID atomic.Uint64
	closed bool
}

// NewMemoryBackend constructs a MemoryBackend. buffer <= 0 selects a default.
func NewMemoryBackend(buffer int) *MemoryBackend {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &MemoryBackend{queues: make(map[string]chan Message), buffer: buffer}
}

func (m *MemoryBackend) queue(channel string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory broker closed")
	}
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, m.buffer)
		m.queues[channel] = q
	}
	return q, nil
}

// Publish enqueues a message. It fails rather than blocks when the queue is full.
func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}
	msg := Message{
		ID:         fmt.Sprintf("mem-%d", m.nextID.Add(1)),
		Data:       append([]byte(nil), data...),
		Attributes: maps.Clone(attrs),
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case q <- msg:
		return msg.ID, nil
	default:
		return "", fmt.Errorf("memory channel %q is full", channel)
	}
}

// Subscribe delivers messages until ctx is done. Failed messages are requeued once.
func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return err
	}
	retried := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil && !retried[msg.ID] {
				retried[msg.ID] = true
				select {
				case q <- msg:
				default:
				}
			}
		}
	}
}

// Drain removes and returns every pending message on channel.
func (m *MemoryBackend) Drain(channel string) []Message {
	q, err := m.queue(channel)
	if err != nil {
		return nil
	}
	var drained []Message
	for {
		select {
		case msg := <-q:
			drained = append(drained, msg)
		default:
			return drained
		}
	}
}

// Close rejects further publishing. Pending messages are discarded.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queues = make(map[string]chan Message)
	return nil
}
