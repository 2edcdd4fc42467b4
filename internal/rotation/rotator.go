// Package rotation keeps a roster of candidate strategies and decides
// which one is live, either by operator request or by scoring recent
// market data.
package rotation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"
)

// Rotation reasons recorded in the history
const (
	ReasonManual = "manual_selection"
	ReasonAuto   = "auto_rotation"
)

// defaultScore is used when a strategy exposes no scoring interface
const defaultScore = 0.5

// Entry is one roster slot
type Entry struct {
	ID       string            `json:"id"`
	Strategy strategy.Strategy `json:"-"`
	Priority int               `json:"priority"` // 0-100 weighting
	Enabled  bool              `json:"enabled"`
}

// Event is one row of the append-only rotation history
type Event struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Decision reports one auto-rotation pass
type Decision struct {
	Changed bool               `json:"changed"`
	From    string             `json:"from,omitempty"`
	To      string             `json:"to,omitempty"`
	Scores  map[string]float64 `json:"scores"`
	Errors  map[string]string  `json:"errors,omitempty"`
}

// Rotator owns the roster, the active slot and the rotation history.
// Safe for concurrent use.
type Rotator struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	order    []string
	activeID string
	history  []Event
	logger   *logging.Logger
}

// NewRotator creates an empty rotator
func NewRotator(logger *logging.Logger) *Rotator {
	return &Rotator{
		entries: make(map[string]*Entry),
		logger:  logger.WithComponent("rotation"),
	}
}

// AddStrategy registers or replaces a roster entry. The first enabled
// strategy added becomes active immediately, and a later registration
// that outranks the active entry's priority takes over the same way.
// Neither promotion is a rotation, so neither touches the history.
func (r *Rotator) AddStrategy(id string, strat strategy.Strategy, priority int, enabled bool) error {
	if id == "" {
		return fmt.Errorf("strategy id is required")
	}
	if strat == nil {
		return fmt.Errorf("strategy %q: nil implementation", id)
	}
	if priority < 0 || priority > 100 {
		return fmt.Errorf("strategy %q: priority %d outside [0, 100]", id, priority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}
	r.entries[id] = &Entry{ID: id, Strategy: strat, Priority: priority, Enabled: enabled}

	if enabled && (r.activeID == "" || priority > r.entries[r.activeID].Priority) {
		r.activeID = id
		r.logger.Info("Strategy %s promoted to active on registration", id)
	}
	return nil
}

// SetEnabled toggles a roster entry; false for unknown ids
func (r *Rotator) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return false
	}
	entry.Enabled = enabled
	return true
}

// SetActive switches the live strategy by operator request. Unknown ids
// return false without touching the history; re-selecting the already
// active strategy succeeds silently, also without a history entry.
func (r *Rotator) SetActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	if id == r.activeID {
		return true
	}

	r.rotate(id, ReasonManual)
	return true
}

// Active returns the live entry, or false when nothing is active
func (r *Rotator) Active() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[r.activeID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Roster returns the entries in registration order
func (r *Rotator) Roster() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// History returns a copy of the rotation log
func (r *Rotator) History() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.history))
	copy(out, r.history)
	return out
}

// AutoRotate scores every enabled strategy against the given bars and
// switches to the highest scorer. Per-strategy evaluation failures are
// captured in the decision, never fatal. With fewer than two enabled
// candidates the active strategy is left alone.
func (r *Rotator) AutoRotate(bars []market.Bar) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	decision := Decision{
		From:   r.activeID,
		Scores: make(map[string]float64),
	}

	enabled := 0
	bestID := ""
	bestScore := math.Inf(-1)
	for _, id := range r.order {
		entry := r.entries[id]
		if !entry.Enabled {
			continue
		}
		enabled++

		score, err := scoreStrategy(entry.Strategy, bars)
		if err != nil {
			if decision.Errors == nil {
				decision.Errors = make(map[string]string)
			}
			decision.Errors[id] = err.Error()
			r.logger.WithError(err).Warn("Scoring failed for strategy %s", id)
			continue
		}

		weighted := score * float64(entry.Priority) / 100
		decision.Scores[id] = weighted
		if weighted > bestScore {
			bestScore = weighted
			bestID = id
		}
	}

	if enabled < 2 || bestID == "" || bestID == r.activeID {
		return decision
	}

	r.rotate(bestID, ReasonAuto)
	decision.Changed = true
	decision.To = bestID
	return decision
}

// rotate performs the switch and logs it; callers hold the lock
func (r *Rotator) rotate(to, reason string) {
	from := r.activeID
	r.activeID = to
	r.history = append(r.history, Event{
		From:   from,
		To:     to,
		Reason: reason,
		At:     time.Now().UTC(),
	})
	r.logger.Info("Rotated active strategy %s -> %s (%s)", from, to, reason)
}

// scoreStrategy derives a raw 0-1 score from whichever scoring interface
// the strategy exposes: sentiment magnitude first, then mean signal
// confidence, then a neutral default.
func scoreStrategy(strat strategy.Strategy, bars []market.Bar) (float64, error) {
	if scorer, ok := strat.(strategy.SentimentScorer); ok {
		sentiment, err := scorer.SentimentScore(bars)
		if err != nil {
			return 0, err
		}
		return math.Abs(sentiment), nil
	}

	if scorer, ok := strat.(strategy.ConfidenceScorer); ok {
		confidences, err := scorer.SignalConfidences(bars)
		if err != nil {
			return 0, err
		}
		if len(confidences) == 0 {
			return defaultScore, nil
		}
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		return sum / float64(len(confidences)), nil
	}

	return defaultScore, nil
}
