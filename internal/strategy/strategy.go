// Package strategy defines the pluggable trading strategy contract and the
// built-in strategies used by the evolution pipeline.
package strategy

import (
	"errors"
	"fmt"
	"sync"

	"evo-trading-bot/internal/market"
)

// ErrUnknownStrategy is returned when a strategy type is not registered
var ErrUnknownStrategy = errors.New("unknown strategy type")

// Signal is a per-bar trading decision
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// Strategy produces a signal series aligned to the bar index. Every
// strategy is constructed from an id and a parameter map; construction
// and signal generation errors are reported to the caller, never panicked.
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// GenerateSignals returns one signal per input bar
	GenerateSignals(bars []market.Bar) ([]Signal, error)
}

// PositionSignal is the richer per-position signal shape used by engines
// that track position sizing.
type PositionSignal struct {
	Direction  Signal  `json:"direction"`
	Size       float64 `json:"size"`       // Fraction of capital to commit, (0, 1]
	Confidence float64 `json:"confidence"` // [0, 1]
}

// PositionSizer is implemented by strategies that size their own entries
type PositionSizer interface {
	// GenerateSignal evaluates the most recent lookback window
	GenerateSignal(lookback []market.Bar) (PositionSignal, error)
}

// SentimentScorer is implemented by sentiment-style strategies. The
// rotator scores them by absolute sentiment value.
type SentimentScorer interface {
	// SentimentScore returns a value in [-1, 1]
	SentimentScore(bars []market.Bar) (float64, error)
}

// ConfidenceScorer is implemented by signal-list strategies. The rotator
// scores them by mean signal confidence.
type ConfidenceScorer interface {
	SignalConfidences(bars []market.Bar) ([]float64, error)
}

// Factory builds a strategy from an id and a parameter map
type Factory func(strategyID string, params map[string]interface{}) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a strategy factory available under name
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a registered strategy by name
func New(name, strategyID string, params map[string]interface{}) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return factory(strategyID, params)
}

// IsRegistered reports whether a strategy type exists in the registry
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Registered returns the names of all registered strategy types
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// paramInt reads an integer parameter, accepting float64 values produced
// by JSON decoding and the genetic engine.
func paramInt(params map[string]interface{}, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		return def
	}
}

func paramFloat(params map[string]interface{}, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return def
	}
}

func paramBool(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
