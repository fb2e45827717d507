// Package notify fans saved-clip and ingested-image events out to the event
// index, the viewers and the message broker.
package notify

import (
	"context"
	"errors"
	"sync"

	"eventcam/internal/logger"
	"eventcam/internal/model"
)

// ErrHubClosed is returned by Publish after Run has shut down.
var ErrHubClosed = errors.New("event hub closed")

// Subscriber handles events on the dispatcher goroutine.
type Subscriber interface {
	HandleEvent(event model.Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(event model.Event)

func (f SubscriberFunc) HandleEvent(event model.Event) { f(event) }

type subscription struct {
	name string
	sub  Subscriber
}

// Hub serializes events from any number of producers onto one dispatcher
// goroutine. Subscribers see every event in publish order and never run on
// the producer's goroutine. Events are never dropped: a slow subscriber
// makes the pending list grow instead.
type Hub struct {
	logger *logger.Logger

	qmu     sync.Mutex
	pending []model.Event
	closed  bool
	wake    chan struct{}

	mu   sync.RWMutex
	subs []subscription

	done chan struct{}
}

// NewHub creates an idle hub; events published before Run are kept.
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Subscribe adds a named subscriber. Subscribers added after Run started
// see the events published after the call.
func (h *Hub) Subscribe(name string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, subscription{name: name, sub: sub})
}

// Publish queues event without blocking. It fails only once the hub has
// shut down.
func (h *Hub) Publish(event model.Event) error {
	h.qmu.Lock()
	if h.closed {
		h.qmu.Unlock()
		return ErrHubClosed
	}
	h.pending = append(h.pending, event)
	h.qmu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Notify implements recorder.Notifier.
func (h *Hub) Notify(event model.Event) {
	if err := h.Publish(event); err != nil {
		h.logger.Error("Event %s not delivered: %v", event.Filename, err)
	}
}

// Pending returns the number of events waiting for the dispatcher.
func (h *Hub) Pending() int {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	return len(h.pending)
}

// Run dispatches events until ctx is canceled, then delivers what is still
// pending and returns. Later publishes fail with ErrHubClosed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		h.drain()
		select {
		case <-h.wake:
		case <-ctx.Done():
			h.qmu.Lock()
			h.closed = true
			h.qmu.Unlock()
			h.drain()
			return
		}
	}
}

// drain dispatches pending events until the list is empty.
func (h *Hub) drain() {
	for {
		h.qmu.Lock()
		batch := h.pending
		h.pending = nil
		h.qmu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			h.dispatch(event)
		}
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) dispatch(event model.Event) {
	h.mu.RLock()
	subs := append([]subscription(nil), h.subs...)
	h.mu.RUnlock()

	for _, s := range subs {
		h.deliver(s, event)
	}
}

func (h *Hub) deliver(s subscription, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Subscriber %s panicked on %s: %v", s.name, event.Filename, r)
		}
	}()
	s.sub.HandleEvent(event)
}
