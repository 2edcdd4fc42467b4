package backtest

import (
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
)

// CryptoEngine backtests spot crypto strategies. No shorting on spot, and
// position-sizing strategies may scale each entry below full capital.
type CryptoEngine struct {
	baseEngine
}

// NewCryptoEngine creates the crypto backtester
func NewCryptoEngine(fetcher market.Fetcher, simulator Simulator, logger *logging.Logger) *CryptoEngine {
	e := &CryptoEngine{}
	e.baseEngine = baseEngine{
		fetcher:   fetcher,
		simulator: simulator,
		logger:    logger.WithComponent("backtest.crypto"),
		minBars:   DefaultMinBars,
		useSizer:  true,
		buildOpts: func(req Request) replayOptions {
			return replayOptions{
				allowShort:    false,
				slippagePct:   req.SlippagePct,
				commissionPct: req.CommissionPct,
			}
		},
	}
	return e
}
