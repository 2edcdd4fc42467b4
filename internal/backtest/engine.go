package backtest

import (
	"context"
	"fmt"
	"time"

	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"

	"github.com/google/uuid"
)

// DefaultMinBars is the minimum rows a run needs to be meaningful
const DefaultMinBars = 30

// minOOSBars is the smallest slice worth validating out-of-sample
const minOOSBars = 10

// defaultOOSSplit is the chronological in-sample fraction
const defaultOOSSplit = 0.7

// Engine replays one strategy over historical data and reports the
// outcome. Implementations never return an error: data problems become
// StatusFailure, strategy exceptions become StatusError.
type Engine interface {
	RunBacktest(ctx context.Context, req Request) Result
}

// Registry selects an engine by asset class
type Registry struct {
	engines map[market.AssetClass]Engine
}

// NewRegistry creates a registry with the three standard engines
func NewRegistry(fetcher market.Fetcher, simulator Simulator, logger *logging.Logger) *Registry {
	r := &Registry{engines: make(map[market.AssetClass]Engine)}
	r.Register(market.AssetEquity, NewEquityEngine(fetcher, simulator, logger))
	r.Register(market.AssetCrypto, NewCryptoEngine(fetcher, simulator, logger))
	r.Register(market.AssetForex, NewForexEngine(fetcher, simulator, logger))
	return r
}

// Register binds an engine to an asset class
func (r *Registry) Register(class market.AssetClass, engine Engine) {
	r.engines[class] = engine
}

// Get returns the engine for an asset class
func (r *Registry) Get(class market.AssetClass) (Engine, error) {
	engine, ok := r.engines[class]
	if !ok {
		return nil, fmt.Errorf("no backtest engine registered for asset class %q", class)
	}
	return engine, nil
}

// RunBacktest dispatches to the engine registered for the request's class
func (r *Registry) RunBacktest(ctx context.Context, req Request) Result {
	engine, err := r.Get(req.AssetClass)
	if err != nil {
		return failureResult(req, err.Error())
	}
	return engine.RunBacktest(ctx, req)
}

// replayOptions tunes the shared replay loop per asset class
type replayOptions struct {
	allowShort   bool
	slippagePct  float64
	commissionPct float64
	// lotUnits > 0 trades a fixed quantity of base currency instead of
	// sizing positions from available cash.
	lotUnits float64
	// sizes, when non-nil, holds a per-bar capital fraction from a
	// position-sizing strategy; ignored for lot-based replay.
	sizes []float64
}

// replay walks the bars sequentially, maintaining cash, position quantity
// and mark-to-market portfolio value. Transitions are position-state
// driven: a buy signal acts only from flat or short, a sell signal only
// from flat (short entry) or long (exit).
func replay(bars []market.Bar, signals []strategy.Signal, capital float64, opts replayOptions) ([]float64, []Trade) {
	cash := capital
	var posQty float64 // > 0 long, < 0 short
	var entryPrice float64
	var entryTime time.Time

	equityCurve := make([]float64, 0, len(bars))
	var trades []Trade

	for i, bar := range bars {
		price := bar.Close
		sig := strategy.SignalHold
		if i < len(signals) {
			sig = signals[i]
		}

		switch {
		case sig == strategy.SignalBuy && posQty <= 0:
			if posQty < 0 {
				// Close the short before going long
				exit := BuyPrice(price, opts.slippagePct, opts.commissionPct)
				qty := -posQty
				cash -= qty * exit
				trades = append(trades, Trade{
					EntryTime:  entryTime,
					ExitTime:   bar.OpenTime,
					EntryPrice: entryPrice,
					ExitPrice:  exit,
					Side:       "SHORT",
					Quantity:   qty,
					ProfitLoss: (entryPrice - exit) * qty,
				})
				posQty = 0
			}

			fill := BuyPrice(price, opts.slippagePct, opts.commissionPct)
			qty := positionQuantity(cash, fill, i, opts)
			if qty > 0 {
				cash -= qty * fill
				posQty = qty
				entryPrice = fill
				entryTime = bar.OpenTime
			}

		case sig == strategy.SignalSell && posQty >= 0:
			if posQty > 0 {
				exit := SellPrice(price, opts.slippagePct, opts.commissionPct)
				cash += posQty * exit
				trades = append(trades, Trade{
					EntryTime:  entryTime,
					ExitTime:   bar.OpenTime,
					EntryPrice: entryPrice,
					ExitPrice:  exit,
					Side:       "LONG",
					Quantity:   posQty,
					ProfitLoss: (exit - entryPrice) * posQty,
				})
				posQty = 0
			}

			if opts.allowShort && posQty == 0 {
				fill := SellPrice(price, opts.slippagePct, opts.commissionPct)
				qty := positionQuantity(cash, fill, i, opts)
				if qty > 0 {
					cash += qty * fill
					posQty = -qty
					entryPrice = fill
					entryTime = bar.OpenTime
				}
			}
		}

		// Mark to market; a short liability shrinks equity as price rises
		equityCurve = append(equityCurve, cash+posQty*price)
	}

	return equityCurve, trades
}

// positionQuantity sizes an entry from cash or the fixed lot
func positionQuantity(cash, fill float64, barIdx int, opts replayOptions) float64 {
	if opts.lotUnits > 0 {
		return opts.lotUnits
	}
	if fill <= 0 || cash <= 0 {
		return 0
	}
	fraction := 1.0
	if opts.sizes != nil && barIdx < len(opts.sizes) && opts.sizes[barIdx] > 0 {
		fraction = opts.sizes[barIdx]
	}
	return cash * fraction / fill
}

// splitOOS partitions bars chronologically into in-sample and
// out-of-sample slices. No shuffling.
func splitOOS(bars []market.Bar, inSampleFraction float64) (inSample, outOfSample []market.Bar) {
	if inSampleFraction <= 0 || inSampleFraction >= 1 {
		inSampleFraction = defaultOOSSplit
	}
	cut := int(float64(len(bars)) * inSampleFraction)
	return bars[:cut], bars[cut:]
}

// buildStrategy resolves the request's factory or registry entry
func buildStrategy(req Request) (strategy.Strategy, error) {
	if req.Factory != nil {
		return req.Factory(req.StrategyID, req.Parameters)
	}
	return strategy.New(req.StrategyType, req.StrategyID, req.Parameters)
}

func failureResult(req Request, msg string) Result {
	return Result{
		RunID:        uuid.New().String(),
		Status:       StatusFailure,
		StrategyID:   req.StrategyID,
		StrategyType: req.StrategyType,
		Parameters:   req.Parameters,
		AssetClass:   req.AssetClass,
		Symbol:       req.Symbol,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Error:        msg,
		CreatedAt:    time.Now().UTC(),
	}
}

func errorResult(req Request, err error) Result {
	r := failureResult(req, err.Error())
	r.Status = StatusError
	return r
}

func successResult(req Request, metrics PerformanceMetrics, trades []Trade) Result {
	return Result{
		RunID:        uuid.New().String(),
		Status:       StatusSuccess,
		StrategyID:   req.StrategyID,
		StrategyType: req.StrategyType,
		Parameters:   req.Parameters,
		AssetClass:   req.AssetClass,
		Symbol:       req.Symbol,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Metrics:      metrics,
		Trades:       trades,
		CreatedAt:    time.Now().UTC(),
	}
}
