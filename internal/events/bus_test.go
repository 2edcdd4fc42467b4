package events

import (
	"sync"
	"testing"
	"time"
)

// collector gathers delivered events for assertions
type collector struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
	want   int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	if len(c.events) == c.want {
		close(c.done)
	}
}

func (c *collector) wait(t *testing.T) []Event {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for events, got %d of %d", len(c.events), c.want)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestSubscribeReceivesMatchingTypeOnly(t *testing.T) {
	bus := NewBus()
	c := newCollector(1)
	bus.Subscribe(EventStrategyRotated, c.handle)

	bus.PublishBacktestCompleted("r1", "s1", "AAPL", "success", 12.5)
	bus.PublishStrategyRotated("old", "new", "auto_rotation")

	got := c.wait(t)
	if got[0].Type != EventStrategyRotated {
		t.Errorf("type = %s, want %s", got[0].Type, EventStrategyRotated)
	}
	if got[0].Data["to"] != "new" {
		t.Errorf("to = %v, want new", got[0].Data["to"])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped on publish")
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()
	c := newCollector(3)
	bus.SubscribeAll(c.handle)

	bus.PublishEvolutionStarted("r1", "sma_crossover", "AAPL", 10)
	bus.PublishGenerationCompleted("r1", 3, 1.5, 0.9)
	bus.PublishEvolutionFailed("r1", "boom")

	got := c.wait(t)
	seen := make(map[EventType]bool)
	for _, e := range got {
		seen[e.Type] = true
	}
	for _, want := range []EventType{EventEvolutionStarted, EventGenerationCompleted, EventEvolutionFailed} {
		if !seen[want] {
			t.Errorf("missing event type %s", want)
		}
	}
}

func TestPublishErrorIncludesCause(t *testing.T) {
	bus := NewBus()
	c := newCollector(1)
	bus.Subscribe(EventError, c.handle)

	bus.PublishError("orchestrator", "evolution run failed", errTest)

	got := c.wait(t)
	if got[0].Data["error"] != "test failure" {
		t.Errorf("error = %v, want test failure", got[0].Data["error"])
	}
	if got[0].Data["source"] != "orchestrator" {
		t.Errorf("source = %v, want orchestrator", got[0].Data["source"])
	}
}

var errTest = errType("test failure")

type errType string

func (e errType) Error() string { return string(e) }
