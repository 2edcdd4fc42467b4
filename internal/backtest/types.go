// Package backtest replays strategies over historical bars and scores the
// outcome. Engines are selected from a registry keyed by asset class; every
// engine converts internal errors into a structured Result rather than
// letting them escape.
package backtest

import (
	"time"

	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"
)

// Status tags the outcome of a backtest run
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure" // Terminal: no data / insufficient data
	StatusError   Status = "error"   // Strategy construction or signal error
)

// Request describes one backtest invocation
type Request struct {
	StrategyID   string                 `json:"strategy_id"`
	StrategyType string                 `json:"strategy_type"`
	Parameters   map[string]interface{} `json:"parameters"`
	AssetClass   market.AssetClass      `json:"asset_class"`
	Symbol       string                 `json:"symbol"`
	StartDate    time.Time              `json:"start_date"`
	EndDate      time.Time              `json:"end_date"`
	Interval     string                 `json:"interval"`

	InitialCapital float64 `json:"initial_capital"`
	CommissionPct  float64 `json:"commission_pct"` // e.g. 0.001 = 0.1%
	SlippagePct    float64 `json:"slippage_pct"`   // forex engines interpret SlippagePips instead
	SlippagePips   float64 `json:"slippage_pips,omitempty"`

	RunOOSValidation bool `json:"run_oos_validation"`
	RunMonteCarlo    bool `json:"run_monte_carlo"`

	// Factory overrides the registered strategy factory; when nil the
	// StrategyType is resolved through the strategy registry.
	Factory strategy.Factory `json:"-"`
}

// Trade is one closed round trip. Produced during simulation, consumed by
// the scorer; retained beyond the run only by the results-storing engine.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Side       string    `json:"side"` // "LONG" or "SHORT"
	Quantity   float64   `json:"quantity"`
	ProfitLoss float64   `json:"profit_loss"`
}

// OOSMetrics holds the out-of-sample validation slice of the report
type OOSMetrics struct {
	TotalReturnPct float64 `json:"oos_total_return"`
	SharpeRatio    float64 `json:"oos_sharpe_ratio"`
	MaxDrawdownPct float64 `json:"oos_max_drawdown"`
}

// MonteCarloMetrics carries robustness fields copied through from the
// Monte Carlo collaborator; the scorer never recomputes them.
type MonteCarloMetrics struct {
	ConsistencyScore float64 `json:"consistency_score"`
	FinalEquityP5    float64 `json:"final_equity_p5"`
	FinalEquityP95   float64 `json:"final_equity_p95"`
	DrawdownP95      float64 `json:"drawdown_p95"`
	Error            string  `json:"error,omitempty"`
}

// PerformanceMetrics is the full performance report for one run
type PerformanceMetrics struct {
	TotalReturnPct float64 `json:"total_return"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown"` // <= 0
	WinRatePct     float64 `json:"win_rate"`
	TradesCount    int     `json:"trades_count"`

	OOS        *OOSMetrics        `json:"oos,omitempty"`
	MonteCarlo *MonteCarloMetrics `json:"monte_carlo,omitempty"`
}

// Result is produced exactly once per backtest invocation and is immutable
// after construction.
type Result struct {
	RunID        string                 `json:"run_id"`
	Status       Status                 `json:"status"`
	StrategyID   string                 `json:"strategy_id"`
	StrategyType string                 `json:"strategy_type"`
	Parameters   map[string]interface{} `json:"parameters"`
	AssetClass   market.AssetClass      `json:"asset_class"`
	Symbol       string                 `json:"symbol"`
	StartDate    time.Time              `json:"start_date"`
	EndDate      time.Time              `json:"end_date"`
	Metrics      PerformanceMetrics     `json:"metrics"`
	Trades       []Trade                `json:"trades,omitempty"`
	Error        string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
