package backtest

import (
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
)

// EquityEngine backtests stock strategies. Short entries are allowed and
// positions are sized from available cash.
type EquityEngine struct {
	baseEngine
}

// NewEquityEngine creates the equity backtester
func NewEquityEngine(fetcher market.Fetcher, simulator Simulator, logger *logging.Logger) *EquityEngine {
	e := &EquityEngine{}
	e.baseEngine = baseEngine{
		fetcher:   fetcher,
		simulator: simulator,
		logger:    logger.WithComponent("backtest.equity"),
		minBars:   DefaultMinBars,
		buildOpts: func(req Request) replayOptions {
			return replayOptions{
				allowShort:    true,
				slippagePct:   req.SlippagePct,
				commissionPct: req.CommissionPct,
			}
		},
	}
	return e
}
