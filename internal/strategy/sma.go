package strategy

import (
	"fmt"
	"math"

	"evo-trading-bot/internal/market"
)

// SMACrossover goes long when the fast moving average crosses above the
// slow one and exits when it crosses back below.
type SMACrossover struct {
	id         string
	fastPeriod int
	slowPeriod int
}

// NewSMACrossover creates an SMA crossover strategy from parameters
// fast_period and slow_period.
func NewSMACrossover(strategyID string, params map[string]interface{}) (Strategy, error) {
	fast := paramInt(params, "fast_period", 10)
	slow := paramInt(params, "slow_period", 30)
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("sma periods must be positive, got fast=%d slow=%d", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast period %d must be below slow period %d", fast, slow)
	}
	return &SMACrossover{id: strategyID, fastPeriod: fast, slowPeriod: slow}, nil
}

func (s *SMACrossover) Name() string {
	return fmt.Sprintf("SMACrossover-%d-%d", s.fastPeriod, s.slowPeriod)
}

func (s *SMACrossover) GenerateSignals(bars []market.Bar) ([]Signal, error) {
	closes := market.Closes(bars)
	signals := make([]Signal, len(bars))

	for i := range bars {
		if i < s.slowPeriod {
			continue
		}
		fast := sma(closes, i, s.fastPeriod)
		slow := sma(closes, i, s.slowPeriod)
		prevFast := sma(closes, i-1, s.fastPeriod)
		prevSlow := sma(closes, i-1, s.slowPeriod)

		switch {
		case prevFast <= prevSlow && fast > slow:
			signals[i] = SignalBuy
		case prevFast >= prevSlow && fast < slow:
			signals[i] = SignalSell
		}
	}

	return signals, nil
}

// SignalConfidences scores each bar by the normalized spread between the
// fast and slow averages.
func (s *SMACrossover) SignalConfidences(bars []market.Bar) ([]float64, error) {
	closes := market.Closes(bars)
	confidences := make([]float64, 0, len(bars))

	for i := s.slowPeriod; i < len(bars); i++ {
		slow := sma(closes, i, s.slowPeriod)
		if slow == 0 {
			continue
		}
		fast := sma(closes, i, s.fastPeriod)
		spread := math.Abs(fast-slow) / slow
		confidences = append(confidences, math.Min(spread*10, 1.0))
	}

	return confidences, nil
}

// sma averages the period values ending at index i inclusive
func sma(values []float64, i, period int) float64 {
	if i+1 < period {
		return 0
	}
	sum := 0.0
	for j := i - period + 1; j <= i; j++ {
		sum += values[j]
	}
	return sum / float64(period)
}
