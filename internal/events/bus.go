// Package events carries system notifications between components without
// direct coupling: the orchestrator publishes, the API's websocket hub
// and any other interested party subscribe.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBacktestCompleted   EventType = "BACKTEST_COMPLETED"
	EventEvolutionStarted    EventType = "EVOLUTION_STARTED"
	EventGenerationCompleted EventType = "GENERATION_COMPLETED"
	EventEvolutionCompleted  EventType = "EVOLUTION_COMPLETED"
	EventEvolutionFailed     EventType = "EVOLUTION_FAILED"
	EventStrategyRotated     EventType = "STRATEGY_ROTATED"
	EventBreakerStateChanged EventType = "BREAKER_STATE_CHANGED"
	EventError               EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Delivery is asynchronous so
// a slow subscriber cannot block the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishBacktestCompleted announces a finished backtest run
func (b *Bus) PublishBacktestCompleted(runID, strategyID, symbol, status string, totalReturn float64) {
	b.Publish(Event{
		Type: EventBacktestCompleted,
		Data: map[string]interface{}{
			"run_id":       runID,
			"strategy_id":  strategyID,
			"symbol":       symbol,
			"status":       status,
			"total_return": totalReturn,
		},
	})
}

// PublishEvolutionStarted announces a new optimization run
func (b *Bus) PublishEvolutionStarted(runID, strategyType, symbol string, generations int) {
	b.Publish(Event{
		Type: EventEvolutionStarted,
		Data: map[string]interface{}{
			"run_id":        runID,
			"strategy_type": strategyType,
			"symbol":        symbol,
			"generations":   generations,
		},
	})
}

// PublishGenerationCompleted reports per-generation progress
func (b *Bus) PublishGenerationCompleted(runID string, generation int, bestFitness, meanFitness float64) {
	b.Publish(Event{
		Type: EventGenerationCompleted,
		Data: map[string]interface{}{
			"run_id":       runID,
			"generation":   generation,
			"best_fitness": bestFitness,
			"mean_fitness": meanFitness,
		},
	})
}

// PublishEvolutionCompleted announces a finished optimization run
func (b *Bus) PublishEvolutionCompleted(runID, bestID string, bestFitness float64) {
	b.Publish(Event{
		Type: EventEvolutionCompleted,
		Data: map[string]interface{}{
			"run_id":       runID,
			"best_id":      bestID,
			"best_fitness": bestFitness,
		},
	})
}

// PublishEvolutionFailed announces an aborted optimization run
func (b *Bus) PublishEvolutionFailed(runID, reason string) {
	b.Publish(Event{
		Type: EventEvolutionFailed,
		Data: map[string]interface{}{
			"run_id": runID,
			"reason": reason,
		},
	})
}

// PublishStrategyRotated announces an active-strategy switch
func (b *Bus) PublishStrategyRotated(from, to, reason string) {
	b.Publish(Event{
		Type: EventStrategyRotated,
		Data: map[string]interface{}{
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

// PublishBreakerStateChanged announces a circuit breaker transition
func (b *Bus) PublishBreakerStateChanged(name, from, to string) {
	b.Publish(Event{
		Type: EventBreakerStateChanged,
		Data: map[string]interface{}{
			"breaker": name,
			"from":    from,
			"to":      to,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
