package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// MessageRecorder is a shared.MessageHandler that records every delivery.
type MessageRecorder struct {
	mu       sync.Mutex
	handled  []*shared.Message
	failures int
	err      error
}

// NewMessageRecorder creates an empty recorder.
func NewMessageRecorder() *MessageRecorder {
	return &MessageRecorder{}
}

// Handle records msg. While failures remain, it returns the configured error.
func (r *MessageRecorder) Handle(_ context.Context, msg *shared.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, msg)
	if r.failures > 0 {
		r.failures--
		return r.err
	}
	return nil
}

// FailNext makes the next n deliveries return err.
func (r *MessageRecorder) FailNext(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
	r.err = err
}

// Handled returns a copy of every recorded delivery.
func (r *MessageRecorder) Handled() []*shared.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*shared.Message, len(r.handled))
	copy(out, r.handled)
	return out
}

// HandledCount returns the number of recorded deliveries.
func (r *MessageRecorder) HandledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handled)
}

// RoutingKeys returns the routing key of each delivery in order.
func (r *MessageRecorder) RoutingKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.handled))
	for _, m := range r.handled {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

// Reset clears recorded deliveries and pending failures.
func (r *MessageRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = nil
	r.failures = 0
	r.err = nil
}

// NewTestMessage builds a message with fresh ids for routingKey.
func NewTestMessage(routingKey string, body []byte) *shared.Message {
	id := uuid.NewString()
	return &shared.Message{
		ID:            id,
		RoutingKey:    routingKey,
		CorrelationID: id,
		EventType:     routingKey,
		Body:          body,
		Headers: map[string]string{
			shared.HeaderMessageID:     id,
			shared.HeaderCorrelationID: id,
		},
		PublishedAt: time.Now(),
	}
}

// WaitForCondition polls condition until it holds or timeout elapses.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// WaitForMessageCount waits until recorder has seen at least count deliveries.
func WaitForMessageCount(t *testing.T, recorder *MessageRecorder, count int, timeout time.Duration) bool {
	t.Helper()
	return WaitForCondition(t, func() bool {
		return recorder.HandledCount() >= count
	}, timeout, 10*time.Millisecond)
}
