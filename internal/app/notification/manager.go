// Package notification provides the notice manager for broadcasting
// user-visible, non-blocking notices.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/cuedeck/internal/domain/apperr"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-visible message.
type Notice struct {
	ID         string    `json:"id"`
	SequenceNo uint64    `json:"sequence_no"`
	Level      Level     `json:"level"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	TrackID    string    `json:"track_id,omitempty"`
	Time       time.Time `json:"time"`
}

// Info creates an informational notice.
func Info(kind, message string) Notice {
	return Notice{Level: LevelInfo, Kind: kind, Message: message}
}

// FromError creates an error notice classified by the error taxonomy.
// Permission and unsupported-feature failures are warnings.
func FromError(err error) Notice {
	level := LevelError
	if errors.Is(err, apperr.ErrPermissionDenied) || errors.Is(err, apperr.ErrUnsupportedFeature) ||
		errors.Is(err, apperr.ErrOperationNotAllowed) {
		level = LevelWarning
	}
	return Notice{Level: level, Kind: apperr.Kind(err), Message: apperr.Message(err)}
}

// Stream represents a notice stream for a subscriber.
type Stream interface {
	Send(Notice) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// historySize is the number of notices kept for late subscribers.
const historySize = 32

// Manager manages notice subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	history       []Notice
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
	now           func() time.Time
}

// NewManager creates a new notice manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
		now:           time.Now,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Publish stamps n with an id, a sequence number and a time, then sends it
// to all subscribers. Each stream send is bounded by a timeout so a slow
// subscriber cannot block the caller for long.
func (m *Manager) Publish(n Notice) Notice {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	n.ID = uuid.New().String()
	if n.Time.IsZero() {
		n.Time = m.now()
	}

	m.mu.Lock()
	m.history = append(m.history, n)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case <-done:
			case <-ctx.Done():
			}
		}(sub)
	}
	wg.Wait()
	return n
}

// SubscribeWithHistory adds a subscription and returns, in the same step,
// up to limit of the latest notices (oldest first). Nothing published
// afterwards is in the history, and nothing in it is sent to the stream.
func (m *Manager) SubscribeWithHistory(stream Stream, limit int) (string, []Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if limit > 0 && len(m.history) > limit {
		start = len(m.history) - limit
	}
	recent := make([]Notice, len(m.history)-start)
	copy(recent, m.history[start:])

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id, recent
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
