package rotation

import (
	"errors"
	"testing"
	"time"

	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr"})
}

// sentimentStub scores by fixed sentiment
type sentimentStub struct {
	name      string
	sentiment float64
	err       error
}

func (s *sentimentStub) Name() string { return s.name }
func (s *sentimentStub) GenerateSignals(bars []market.Bar) ([]strategy.Signal, error) {
	return make([]strategy.Signal, len(bars)), nil
}
func (s *sentimentStub) SentimentScore([]market.Bar) (float64, error) {
	return s.sentiment, s.err
}

// confidenceStub scores by fixed mean confidence
type confidenceStub struct {
	name        string
	confidences []float64
}

func (s *confidenceStub) Name() string { return s.name }
func (s *confidenceStub) GenerateSignals(bars []market.Bar) ([]strategy.Signal, error) {
	return make([]strategy.Signal, len(bars)), nil
}
func (s *confidenceStub) SignalConfidences([]market.Bar) ([]float64, error) {
	return s.confidences, nil
}

// plainStub exposes no scoring interface
type plainStub struct{ name string }

func (s *plainStub) Name() string { return s.name }
func (s *plainStub) GenerateSignals(bars []market.Bar) ([]strategy.Signal, error) {
	return make([]strategy.Signal, len(bars)), nil
}

func someBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = market.Bar{OpenTime: t0.Add(time.Duration(i) * time.Hour), Close: 100}
	}
	return bars
}

func TestAddStrategyValidation(t *testing.T) {
	r := NewRotator(testLogger())
	if err := r.AddStrategy("", &plainStub{}, 50, true); err == nil {
		t.Error("empty id should be rejected")
	}
	if err := r.AddStrategy("a", nil, 50, true); err == nil {
		t.Error("nil strategy should be rejected")
	}
	if err := r.AddStrategy("a", &plainStub{name: "a"}, 150, true); err == nil {
		t.Error("priority above 100 should be rejected")
	}
}

func TestFirstEnabledStrategyBecomesActive(t *testing.T) {
	r := NewRotator(testLogger())
	if err := r.AddStrategy("disabled", &plainStub{name: "disabled"}, 50, false); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Active(); ok {
		t.Fatal("disabled registration should not activate")
	}

	if err := r.AddStrategy("first", &plainStub{name: "first"}, 50, true); err != nil {
		t.Fatal(err)
	}
	active, ok := r.Active()
	if !ok || active.ID != "first" {
		t.Fatalf("active = %+v, want first", active)
	}
	if len(r.History()) != 0 {
		t.Error("initial promotion is not a rotation")
	}
}

func TestHigherPriorityRegistrationPromotes(t *testing.T) {
	r := NewRotator(testLogger())
	if err := r.AddStrategy("low", &plainStub{name: "low"}, 40, true); err != nil {
		t.Fatal(err)
	}
	if err := r.AddStrategy("high", &plainStub{name: "high"}, 90, true); err != nil {
		t.Fatal(err)
	}

	active, ok := r.Active()
	if !ok || active.ID != "high" {
		t.Fatalf("active = %+v, want high", active)
	}
	if len(r.History()) != 0 {
		t.Error("registration promotion is not a rotation")
	}

	// Equal priority never displaces the incumbent
	if err := r.AddStrategy("tied", &plainStub{name: "tied"}, 90, true); err != nil {
		t.Fatal(err)
	}
	if active, _ := r.Active(); active.ID != "high" {
		t.Errorf("active = %s, want high to keep the slot", active.ID)
	}

	// Neither does a higher-priority but disabled entry
	if err := r.AddStrategy("benched", &plainStub{name: "benched"}, 100, false); err != nil {
		t.Fatal(err)
	}
	if active, _ := r.Active(); active.ID != "high" {
		t.Errorf("active = %s, want high over the disabled entry", active.ID)
	}
}

func TestSetActive(t *testing.T) {
	r := NewRotator(testLogger())
	r.AddStrategy("a", &plainStub{name: "a"}, 50, true)
	r.AddStrategy("b", &plainStub{name: "b"}, 50, true)

	if r.SetActive("missing") {
		t.Error("unknown id should return false")
	}
	if len(r.History()) != 0 {
		t.Error("failed selection must not touch history")
	}

	if !r.SetActive("a") {
		t.Error("re-selecting the active strategy should succeed")
	}
	if len(r.History()) != 0 {
		t.Error("no-op selection must not touch history")
	}

	if !r.SetActive("b") {
		t.Fatal("selection of b failed")
	}
	history := r.History()
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].From != "a" || history[0].To != "b" || history[0].Reason != ReasonManual {
		t.Errorf("unexpected event %+v", history[0])
	}
}

func TestAutoRotatePicksHighestWeightedScore(t *testing.T) {
	r := NewRotator(testLogger())
	// Raw 0.9 at priority 50 weighs 0.45; raw 0.6 at priority 100 weighs 0.6
	r.AddStrategy("strong-signal", &sentimentStub{name: "strong-signal", sentiment: -0.9}, 50, true)
	r.AddStrategy("high-priority", &sentimentStub{name: "high-priority", sentiment: 0.6}, 100, true)
	// Registration promoted high-priority; hand the slot back so the
	// scan has something to correct
	r.SetActive("strong-signal")

	decision := r.AutoRotate(someBars(30))
	if !decision.Changed {
		t.Fatalf("expected a rotation, got %+v", decision)
	}
	if decision.To != "high-priority" {
		t.Errorf("rotated to %s, want high-priority", decision.To)
	}

	history := r.History()
	if len(history) != 2 || history[1].Reason != ReasonAuto {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestAutoRotateSingleCandidateNoChange(t *testing.T) {
	r := NewRotator(testLogger())
	r.AddStrategy("only", &sentimentStub{name: "only", sentiment: 0.9}, 100, true)
	r.AddStrategy("off", &sentimentStub{name: "off", sentiment: 1.0}, 100, false)

	decision := r.AutoRotate(someBars(30))
	if decision.Changed {
		t.Error("a single enabled strategy must never rotate")
	}
	if len(r.History()) != 0 {
		t.Error("no-change pass must not touch history")
	}
}

func TestAutoRotateAlreadyBest(t *testing.T) {
	r := NewRotator(testLogger())
	r.AddStrategy("best", &sentimentStub{name: "best", sentiment: 0.9}, 100, true)
	r.AddStrategy("worse", &sentimentStub{name: "worse", sentiment: 0.1}, 100, true)

	decision := r.AutoRotate(someBars(30))
	if decision.Changed {
		t.Errorf("active strategy already best, got %+v", decision)
	}
}

func TestAutoRotateCapturesErrors(t *testing.T) {
	r := NewRotator(testLogger())
	r.AddStrategy("broken", &sentimentStub{name: "broken", err: errors.New("no data")}, 100, true)
	r.AddStrategy("working", &sentimentStub{name: "working", sentiment: 0.5}, 100, true)

	decision := r.AutoRotate(someBars(30))
	if decision.Errors["broken"] == "" {
		t.Error("evaluation failure should be captured per strategy")
	}
	if _, scored := decision.Scores["broken"]; scored {
		t.Error("failed strategy must not receive a score")
	}
	if !decision.Changed || decision.To != "working" {
		t.Errorf("healthy strategy should win, got %+v", decision)
	}
}

func TestScoreStrategyFallbacks(t *testing.T) {
	bars := someBars(10)

	got, err := scoreStrategy(&confidenceStub{confidences: []float64{0.2, 0.4, 0.6}}, bars)
	if err != nil {
		t.Fatal(err)
	}
	if got < 0.399 || got > 0.401 {
		t.Errorf("mean confidence = %v, want 0.4", got)
	}

	got, err = scoreStrategy(&plainStub{}, bars)
	if err != nil {
		t.Fatal(err)
	}
	if got != defaultScore {
		t.Errorf("unscorable strategy = %v, want neutral %v", got, defaultScore)
	}
}
