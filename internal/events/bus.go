package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskmind/api/schemas"
)

// ErrBusShutdown is returned when publishing to a bus that has been shut down.
var ErrBusShutdown = errors.New("event bus is shut down")

// EventType identifies the kind of payload an Event carries.
type EventType string

const (
	// TypeDecision carries a schemas.Decision for every processed request.
	TypeDecision EventType = "decision"
	// TypeIdentity carries an IdentityEvent whenever a target handle is resolved.
	TypeIdentity EventType = "identity"
)

// allTypes is what an unfiltered Subscribe listens to.
var allTypes = []EventType{TypeDecision, TypeIdentity}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
}

// IdentityEvent records how a handle was resolved for an action.
type IdentityEvent struct {
	RequestID  string `json:"request_id"`
	ActionID   string `json:"action_id"`
	HandleID   string `json:"handle_id"`
	Basis      string `json:"basis"`
	Confidence string `json:"confidence"`
	Windows    int    `json:"windows"`
}

// NewDecisionEvent wraps a decision for publication.
func NewDecisionEvent(d schemas.Decision) Event {
	return Event{Type: TypeDecision, Payload: d}
}

// Bus is a pub/sub fan-out for pipeline events. Publishing never blocks: a
// subscriber whose buffer is full misses the event and the drop is counted.
// Consumers such as ambient memory capture run on their own schedule.
type Bus struct {
	logger     *zap.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates a bus whose subscriber channels hold bufferSize events.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		logger:      logger.Named("event_bus"),
		bufferSize:  bufferSize,
		subscribers: make(map[EventType][]chan Event),
	}
}

// Publish delivers evt to every subscriber of its type without waiting.
func (b *Bus) Publish(evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusShutdown
	}

	b.published.Add(1)
	for _, ch := range b.subscribers[evt.Type] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			b.logger.Debug("Subscriber buffer full, dropping event",
				zap.String("type", string(evt.Type)), zap.String("event_id", evt.ID))
		}
	}
	return nil
}

// Subscribe returns a channel receiving events of the given types (all types
// when none are given) and a function that unsubscribes and closes it.
func (b *Bus) Subscribe(types ...EventType) (<-chan Event, func()) {
	if len(types) == 0 {
		types = allTypes
	}
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.closed {
				// Shutdown already closed the channel.
				return
			}
			for _, t := range types {
				subs := b.subscribers[t]
				for i, sub := range subs {
					if sub == ch {
						b.subscribers[t] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Published returns how many events were accepted for delivery.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Shutdown closes every subscriber channel. Further publishes fail.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	unique := make(map[chan Event]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[EventType][]chan Event)
	b.logger.Debug("Event bus shut down",
		zap.Uint64("published", b.published.Load()),
		zap.Uint64("dropped", b.dropped.Load()))
}
