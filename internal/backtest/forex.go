package backtest

import (
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
)

// defaultLotUnits is one mini lot of base currency
const defaultLotUnits = 10000

// pipSize is the standard pip for non-JPY pairs
const pipSize = 0.0001

// ForexEngine backtests currency-pair strategies. Both directions are
// allowed and every entry trades a fixed lot rather than a cash fraction.
type ForexEngine struct {
	baseEngine
}

// NewForexEngine creates the forex backtester
func NewForexEngine(fetcher market.Fetcher, simulator Simulator, logger *logging.Logger) *ForexEngine {
	e := &ForexEngine{}
	e.baseEngine = baseEngine{
		fetcher:   fetcher,
		simulator: simulator,
		logger:    logger.WithComponent("backtest.forex"),
		minBars:   DefaultMinBars,
		buildOpts: func(req Request) replayOptions {
			return replayOptions{
				allowShort:    true,
				slippagePct:   forexSlippagePct(req),
				commissionPct: req.CommissionPct,
				lotUnits:      defaultLotUnits,
			}
		},
	}
	return e
}

// forexSlippagePct converts pip slippage to a fractional rate against a
// reference price of 1.0. Exact for pairs near parity, an approximation
// elsewhere; pair-specific conversion would need the quote at fill time.
func forexSlippagePct(req Request) float64 {
	if req.SlippagePips > 0 {
		return req.SlippagePips * pipSize
	}
	return req.SlippagePct
}
