package memory

import (
	"context"
	"sync"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/aescanero/codeforge/pkg/ports"
	"go.uber.org/zap"
)

const defaultBuffer = 256

// EventBus implements ports.EventBus in process. Each subscriber receives events
// in publish order on its own goroutine; a subscriber that falls behind by more
// than the buffer size loses events.
type EventBus struct {
	subscribers map[string]map[uint64]*subscriber
	nextID      uint64
	buffer      int
	logger      *zap.Logger
	mu          sync.RWMutex
	closed      bool
}

type subscriber struct {
	events chan domain.Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewEventBus creates a new in-memory event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[uint64]*subscriber),
		buffer:      defaultBuffer,
		logger:      logger,
	}
}

// Publish delivers an event to every subscriber of a topic
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.events <- event:
		default:
			e.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", topic),
				zap.String("task_id", event.TaskID),
				zap.String("type", string(event.Type)))
		}
	}
	return nil
}

// Subscribe registers a handler until ctx is cancelled or the bus is closed
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return context.Canceled
	}
	id := e.nextID
	e.nextID++
	sub := &subscriber{
		events: make(chan domain.Event, e.buffer),
		done:   make(chan struct{}),
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscriber)
	}
	e.subscribers[topic][id] = sub
	e.mu.Unlock()

	go func() {
		defer e.unsubscribe(topic, id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case ev := <-sub.events:
				if err := handler(ctx, ev); err != nil {
					e.logger.Debug("event handler error",
						zap.String("topic", topic),
						zap.String("event_id", ev.ID),
						zap.Error(err))
				}
			}
		}
	}()

	return nil
}

// Close stops every subscription
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for _, subs := range e.subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	e.subscribers = make(map[string]map[uint64]*subscriber)
	return nil
}

// unsubscribe removes a subscription from a topic
func (e *EventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if subs, ok := e.subscribers[topic]; ok {
		if sub, ok := subs[id]; ok {
			sub.stop()
			delete(subs, id)
		}
		if len(subs) == 0 {
			delete(e.subscribers, topic)
		}
	}
}
