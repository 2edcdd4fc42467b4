package backtest

import (
	"context"
	"errors"
	"fmt"

	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"
)

// baseEngine implements the pipeline every asset-class engine shares:
// fetch, validate, generate signals, replay, OOS split, Monte Carlo,
// score. Variants differ only through their replayOptions.
type baseEngine struct {
	fetcher   market.Fetcher
	simulator Simulator
	logger    *logging.Logger
	minBars   int

	// buildOpts derives the replay parameters for this asset class
	buildOpts func(req Request) replayOptions

	// useSizer lets position-sizing strategies drive per-entry size
	useSizer bool
}

func (e *baseEngine) RunBacktest(ctx context.Context, req Request) Result {
	log := e.logger.WithFields(map[string]interface{}{
		"strategy_id": req.StrategyID,
		"symbol":      req.Symbol,
		"asset_class": string(req.AssetClass),
	})

	bars, err := e.fetcher.Fetch(ctx, market.FetchRequest{
		Symbol:     req.Symbol,
		AssetClass: req.AssetClass,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Interval:   req.Interval,
	})
	if err != nil {
		if errors.Is(err, market.ErrNoData) {
			return failureResult(req, fmt.Sprintf("no historical data for %s", req.Symbol))
		}
		return failureResult(req, fmt.Sprintf("data fetch failed: %v", err))
	}

	minBars := e.minBars
	if minBars <= 0 {
		minBars = DefaultMinBars
	}
	if len(bars) < minBars {
		return failureResult(req, fmt.Sprintf("insufficient data: %d bars, need %d", len(bars), minBars))
	}

	strat, err := buildStrategy(req)
	if err != nil {
		log.Warn("Strategy construction failed: %v", err)
		return errorResult(req, err)
	}

	opts := e.buildOpts(req)

	// Full-series replay produces the headline metrics
	signals, sizes, err := e.generate(strat, bars)
	if err != nil {
		log.Warn("Signal generation failed: %v", err)
		return errorResult(req, err)
	}
	opts.sizes = sizes
	equityCurve, trades := replay(bars, signals, req.InitialCapital, opts)

	mcCurve := equityCurve

	metrics := Score(equityCurve, trades)

	if req.RunOOSValidation {
		inSample, outOfSample := splitOOS(bars, defaultOOSSplit)
		if len(outOfSample) < minOOSBars {
			log.Debug("Skipping OOS validation: only %d out-of-sample bars", len(outOfSample))
		} else {
			oos, isCurve, err := e.runSlices(strat, inSample, outOfSample, req.InitialCapital, opts)
			if err != nil {
				log.Warn("OOS signal generation failed: %v", err)
				return errorResult(req, err)
			}
			metrics.OOS = oos
			mcCurve = isCurve // Monte Carlo resamples the in-sample curve
		}
	}

	if req.RunMonteCarlo {
		metrics.MonteCarlo = e.runMonteCarlo(ctx, mcCurve, req.InitialCapital)
	}

	return successResult(req, metrics, trades)
}

// generate produces the aligned signal series, consulting PositionSizer
// strategies bar by bar when the engine supports per-position sizing.
func (e *baseEngine) generate(strat strategy.Strategy, bars []market.Bar) ([]strategy.Signal, []float64, error) {
	if e.useSizer {
		if sizer, ok := strat.(strategy.PositionSizer); ok {
			signals := make([]strategy.Signal, len(bars))
			sizes := make([]float64, len(bars))
			for i := range bars {
				sig, err := sizer.GenerateSignal(bars[:i+1])
				if err != nil {
					return nil, nil, err
				}
				signals[i] = sig.Direction
				sizes[i] = sig.Size
			}
			return signals, sizes, nil
		}
	}

	signals, err := strat.GenerateSignals(bars)
	if err != nil {
		return nil, nil, err
	}
	return signals, nil, nil
}

// runSlices re-runs signal generation and replay on the in-sample and
// out-of-sample partitions.
func (e *baseEngine) runSlices(strat strategy.Strategy, inSample, outOfSample []market.Bar, capital float64, opts replayOptions) (*OOSMetrics, []float64, error) {
	isSignals, isSizes, err := e.generate(strat, inSample)
	if err != nil {
		return nil, nil, err
	}
	isOpts := opts
	isOpts.sizes = isSizes
	isCurve, _ := replay(inSample, isSignals, capital, isOpts)

	oosSignals, oosSizes, err := e.generate(strat, outOfSample)
	if err != nil {
		return nil, nil, err
	}
	oosOpts := opts
	oosOpts.sizes = oosSizes
	oosCurve, oosTrades := replay(outOfSample, oosSignals, capital, oosOpts)

	oosMetrics := Score(oosCurve, oosTrades)
	return &OOSMetrics{
		TotalReturnPct: oosMetrics.TotalReturnPct,
		SharpeRatio:    oosMetrics.SharpeRatio,
		MaxDrawdownPct: oosMetrics.MaxDrawdownPct,
	}, isCurve, nil
}

// runMonteCarlo degrades to an error payload instead of failing the run
func (e *baseEngine) runMonteCarlo(ctx context.Context, equityCurve []float64, capital float64) *MonteCarloMetrics {
	sim, err := e.simulator.Simulate(ctx, periodReturns(equityCurve), capital)
	if err != nil {
		return &MonteCarloMetrics{Error: err.Error()}
	}
	if sim.Status != "success" {
		return &MonteCarloMetrics{Error: sim.Error}
	}

	// Copied through unchanged; the scorer never recomputes these
	return &MonteCarloMetrics{
		ConsistencyScore: sim.ConsistencyScore,
		FinalEquityP5:    sim.FinalEquityP5,
		FinalEquityP95:   sim.FinalEquityP95,
		DrawdownP95:      sim.DrawdownP95,
	}
}
