package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"eventcam/internal/logger"
	"eventcam/internal/model"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type collector struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *collector) HandleEvent(e model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) Filenames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, e := range c.events {
		names = append(names, e.Filename)
	}
	return names
}

func waitDone(t *testing.T, h *Hub) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Hub did not stop")
	}
}

func TestHub_DeliversInOrderToAllSubscribers(t *testing.T) {
	h := NewHub(logger.Discard())
	a, b := &collector{}, &collector{}
	h.Subscribe("a", a)
	h.Subscribe("b", b)

	for _, name := range []string{"1.mp4", "2.jpg", "3.mp4"} {
		if err := h.Publish(model.Event{Filename: name}); err != nil {
			t.Fatalf("Publish(%s) failed: %v", name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	waitDone(t, h)

	for _, c := range []*collector{a, b} {
		got := c.Filenames()
		if len(got) != 3 || got[0] != "1.mp4" || got[1] != "2.jpg" || got[2] != "3.mp4" {
			t.Errorf("Expected ordered delivery, got %v", got)
		}
	}
}

func TestHub_SlowSubscriberLosesNothing(t *testing.T) {
	h := NewHub(logger.Discard())
	c := &collector{}
	h.Subscribe("slow", SubscriberFunc(func(e model.Event) {
		time.Sleep(time.Millisecond)
		c.HandleEvent(e)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	for i := 0; i < 200; i++ {
		h.Notify(model.Event{Filename: fmt.Sprintf("clip_%d.mp4", i)})
	}
	cancel()
	waitDone(t, h)

	got := c.Filenames()
	if len(got) != 200 {
		t.Fatalf("Expected 200 delivered events, got %d", len(got))
	}
	for i, name := range got {
		if name != fmt.Sprintf("clip_%d.mp4", i) {
			t.Fatalf("Event %d out of order: %s", i, name)
		}
	}
	if h.Pending() != 0 {
		t.Errorf("Expected nothing pending after shutdown, got %d", h.Pending())
	}
}

func TestHub_PublishAfterShutdown(t *testing.T) {
	h := NewHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	waitDone(t, h)

	if err := h.Publish(model.Event{Filename: "late.mp4"}); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Expected ErrHubClosed, got %v", err)
	}
}

func TestHub_SubscriberPanicIsContained(t *testing.T) {
	h := NewHub(logger.Discard())
	good := &collector{}
	h.Subscribe("bad", SubscriberFunc(func(model.Event) { panic("boom") }))
	h.Subscribe("good", good)

	h.Notify(model.Event{Filename: "clip.mp4"})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	waitDone(t, h)

	if got := good.Filenames(); len(got) != 1 {
		t.Errorf("Good subscriber should still receive the event, got %v", got)
	}
}

func TestHub_ConcurrentProducers(t *testing.T) {
	h := NewHub(logger.Discard())
	c := &collector{}
	h.Subscribe("c", c)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := h.Publish(model.Event{Kind: model.EventImage}); err != nil {
					t.Errorf("Publish failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	cancel()
	waitDone(t, h)

	if got := len(c.Filenames()); got != 400 {
		t.Errorf("Expected 400 events, got %d", got)
	}
}

// ========================================
// MQTT
// ========================================

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeClient struct {
	token    *fakeToken
	topics   []string
	payloads [][]byte
	quiesce  uint
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return c.token
}

func (c *fakeClient) Disconnect(quiesce uint) { c.quiesce = quiesce }

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}}
	p := newMQTTPublisher(client, "eventcam/events", 1, logger.Discard())

	p.HandleEvent(model.Event{Kind: model.EventClip, Label: "collision", Filename: "collision_20250615_143000.mp4"})

	if len(client.topics) != 1 || client.topics[0] != "eventcam/events/clip" {
		t.Fatalf("Unexpected topics: %v", client.topics)
	}
	var decoded model.Event
	if err := json.Unmarshal(client.payloads[0], &decoded); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if decoded.Label != "collision" {
		t.Errorf("Unexpected payload: %+v", decoded)
	}
	if p.Published() != 1 || p.Errors() != 0 {
		t.Errorf("Unexpected counters: %d/%d", p.Published(), p.Errors())
	}

	p.Disconnect()
	if client.quiesce != 250 {
		t.Errorf("Expected 250ms quiesce, got %d", client.quiesce)
	}
}

func TestMQTTPublisher_Failures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"timeout", &fakeToken{timeout: true}},
		{"broker error", &fakeToken{err: errors.New("not authorized")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMQTTPublisher(&fakeClient{token: tt.token}, "t", 0, logger.Discard())

			if err := p.Publish(model.Event{Kind: model.EventImage}); err == nil {
				t.Error("Expected publish error")
			}
			p.HandleEvent(model.Event{Kind: model.EventImage})
			if p.Errors() != 1 || p.Published() != 0 {
				t.Errorf("Unexpected counters: published=%d errors=%d", p.Published(), p.Errors())
			}
		})
	}
}

type fakeStore struct {
	events []model.Event
	err    error
}

func (s *fakeStore) Insert(e *model.Event) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.events = append(s.events, *e)
	return int64(len(s.events)), nil
}

func TestIndexer_HandleEvent(t *testing.T) {
	store := &fakeStore{}
	indexer := NewIndexer(store, logger.Discard())

	indexer.HandleEvent(model.Event{Filename: "fire_20250615_143000.mp4", Kind: model.EventClip})
	if len(store.events) != 1 || store.events[0].Filename != "fire_20250615_143000.mp4" {
		t.Errorf("Expected event to be stored, got %+v", store.events)
	}

	store.err = errors.New("database is locked")
	indexer.HandleEvent(model.Event{Filename: "second.mp4"})
	if len(store.events) != 1 {
		t.Error("Failed insert should not store the event")
	}
}
