package strategy

import (
	"fmt"
	"math"

	"evo-trading-bot/internal/market"
)

// MarketSentiment derives a scalar sentiment in [-1, 1] from recent price
// momentum and volume expansion, and trades its sign past a threshold.
type MarketSentiment struct {
	id        string
	lookback  int
	threshold float64
}

// NewMarketSentiment creates a sentiment strategy from parameters
// lookback and threshold.
func NewMarketSentiment(strategyID string, params map[string]interface{}) (Strategy, error) {
	lookback := paramInt(params, "lookback", 20)
	threshold := paramFloat(params, "threshold", 0.2)

	if lookback < 2 {
		return nil, fmt.Errorf("sentiment lookback must be at least 2, got %d", lookback)
	}
	if threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("sentiment threshold must be in [0, 1), got %v", threshold)
	}

	return &MarketSentiment{id: strategyID, lookback: lookback, threshold: threshold}, nil
}

func (s *MarketSentiment) Name() string {
	return fmt.Sprintf("MarketSentiment-%d", s.lookback)
}

func (s *MarketSentiment) GenerateSignals(bars []market.Bar) ([]Signal, error) {
	signals := make([]Signal, len(bars))

	for i := s.lookback; i < len(bars); i++ {
		score := s.scoreWindow(bars[i-s.lookback : i+1])
		switch {
		case score > s.threshold:
			signals[i] = SignalBuy
		case score < -s.threshold:
			signals[i] = SignalSell
		}
	}

	return signals, nil
}

// SentimentScore implements SentimentScorer over the trailing window
func (s *MarketSentiment) SentimentScore(bars []market.Bar) (float64, error) {
	if len(bars) < s.lookback+1 {
		return 0, fmt.Errorf("need at least %d bars for sentiment, got %d", s.lookback+1, len(bars))
	}
	return s.scoreWindow(bars[len(bars)-s.lookback-1:]), nil
}

// scoreWindow combines price momentum with volume trend. Momentum
// dominates; volume expansion amplifies it up to 50%.
func (s *MarketSentiment) scoreWindow(window []market.Bar) float64 {
	first := window[0].Close
	last := window[len(window)-1].Close
	if first == 0 {
		return 0
	}

	momentum := (last - first) / first * 10 // ±10% move saturates

	half := len(window) / 2
	var earlyVol, lateVol float64
	for i, b := range window {
		if i < half {
			earlyVol += b.Volume
		} else {
			lateVol += b.Volume
		}
	}
	amplify := 1.0
	if earlyVol > 0 && lateVol > earlyVol {
		amplify = math.Min(lateVol/earlyVol, 1.5)
	}

	return clamp(momentum*amplify, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func init() {
	Register("sma_crossover", NewSMACrossover)
	Register("rsi_momentum", NewRSIMomentum)
	Register("market_sentiment", NewMarketSentiment)
}
