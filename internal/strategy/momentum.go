package strategy

import (
	"fmt"
	"math"

	"evo-trading-bot/internal/market"
)

// RSIMomentum buys oversold conditions and sells overbought ones, with an
// optional self-sized entry scaled by how deep into the band price is.
type RSIMomentum struct {
	id         string
	period     int
	oversold   float64
	overbought float64
	scaleSize  bool
}

// NewRSIMomentum creates an RSI threshold strategy from parameters
// rsi_period, oversold, overbought and scale_size.
func NewRSIMomentum(strategyID string, params map[string]interface{}) (Strategy, error) {
	period := paramInt(params, "rsi_period", 14)
	oversold := paramFloat(params, "oversold", 30)
	overbought := paramFloat(params, "overbought", 70)

	if period < 2 {
		return nil, fmt.Errorf("rsi period must be at least 2, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("oversold %v must be below overbought %v", oversold, overbought)
	}

	return &RSIMomentum{
		id:         strategyID,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		scaleSize:  paramBool(params, "scale_size", false),
	}, nil
}

func (s *RSIMomentum) Name() string {
	return fmt.Sprintf("RSIMomentum-%d", s.period)
}

func (s *RSIMomentum) GenerateSignals(bars []market.Bar) ([]Signal, error) {
	closes := market.Closes(bars)
	signals := make([]Signal, len(bars))

	for i := range bars {
		rsi, ok := rsiAt(closes, i, s.period)
		if !ok {
			continue
		}
		switch {
		case rsi <= s.oversold:
			signals[i] = SignalBuy
		case rsi >= s.overbought:
			signals[i] = SignalSell
		}
	}

	return signals, nil
}

// GenerateSignal implements PositionSizer over a lookback window
func (s *RSIMomentum) GenerateSignal(lookback []market.Bar) (PositionSignal, error) {
	closes := market.Closes(lookback)
	rsi, ok := rsiAt(closes, len(closes)-1, s.period)
	if !ok {
		return PositionSignal{Direction: SignalHold}, nil
	}

	sig := PositionSignal{Direction: SignalHold, Size: 1.0}
	switch {
	case rsi <= s.oversold:
		sig.Direction = SignalBuy
		sig.Confidence = math.Min((s.oversold-rsi)/s.oversold+0.5, 1.0)
	case rsi >= s.overbought:
		sig.Direction = SignalSell
		sig.Confidence = math.Min((rsi-s.overbought)/(100-s.overbought)+0.5, 1.0)
	}
	if s.scaleSize && sig.Direction != SignalHold {
		sig.Size = 0.5 + 0.5*sig.Confidence
	}
	return sig, nil
}

// SignalConfidences scores bars by distance from the neutral RSI midpoint
func (s *RSIMomentum) SignalConfidences(bars []market.Bar) ([]float64, error) {
	closes := market.Closes(bars)
	confidences := make([]float64, 0, len(bars))

	for i := s.period; i < len(closes); i++ {
		rsi, ok := rsiAt(closes, i, s.period)
		if !ok {
			continue
		}
		confidences = append(confidences, math.Abs(rsi-50)/50)
	}

	return confidences, nil
}

// rsiAt computes the RSI of the period window ending at index i
func rsiAt(closes []float64, i, period int) (float64, bool) {
	if i < period {
		return 0, false
	}

	var gains, losses float64
	for j := i - period + 1; j <= i; j++ {
		change := closes[j] - closes[j-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if losses == 0 {
		return 100, true
	}
	rs := gains / losses
	return 100 - 100/(1+rs), true
}
