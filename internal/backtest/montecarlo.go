package backtest

import (
	"context"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

// SimulationResult is the contract produced by the Monte Carlo collaborator
type SimulationResult struct {
	Status           string  `json:"status"`
	ConsistencyScore float64 `json:"consistency_score"`
	FinalEquityP5    float64 `json:"final_equity_p5"`
	FinalEquityP95   float64 `json:"final_equity_p95"`
	DrawdownP95      float64 `json:"drawdown_p95"`
	Error            string  `json:"error,omitempty"`
}

// Simulator resamples a return series to estimate outcome robustness.
// The engines consume only this interface.
type Simulator interface {
	Simulate(ctx context.Context, periodReturns []float64, initialCapital float64) (SimulationResult, error)
}

// minMonteCarloReturns is the smallest return sample worth resampling
const minMonteCarloReturns = 10

// BootstrapSimulator is the default Simulator: it bootstrap-resamples the
// return series across a worker pool. Trials are independent, so
// aggregation order does not matter.
type BootstrapSimulator struct {
	Trials  int
	Workers int
	Seed    int64 // 0 = nondeterministic
}

// NewBootstrapSimulator creates a simulator with the given trial count
func NewBootstrapSimulator(trials int) *BootstrapSimulator {
	if trials <= 0 {
		trials = 500
	}
	return &BootstrapSimulator{Trials: trials}
}

type trialOutcome struct {
	finalEquity float64
	maxDrawdown float64
}

// Simulate implements Simulator
func (s *BootstrapSimulator) Simulate(ctx context.Context, periodReturns []float64, initialCapital float64) (SimulationResult, error) {
	if len(periodReturns) < minMonteCarloReturns {
		return SimulationResult{
			Status: "error",
			Error:  "insufficient return observations for monte carlo analysis",
		}, nil
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > s.Trials {
		workers = s.Trials
	}

	outcomes := make([]trialOutcome, s.Trials)
	var wg sync.WaitGroup
	trialCh := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		seed := s.Seed
		if seed != 0 {
			seed += int64(w)
		}
		go func(seed int64) {
			defer wg.Done()
			rng := newTrialRNG(seed)
			for i := range trialCh {
				outcomes[i] = runTrial(rng, periodReturns, initialCapital)
			}
		}(seed)
	}

	for i := 0; i < s.Trials; i++ {
		select {
		case trialCh <- i:
		case <-ctx.Done():
			close(trialCh)
			wg.Wait()
			return SimulationResult{Status: "error", Error: ctx.Err().Error()}, ctx.Err()
		}
	}
	close(trialCh)
	wg.Wait()

	finals := make([]float64, s.Trials)
	drawdowns := make([]float64, s.Trials)
	profitable := 0
	for i, o := range outcomes {
		finals[i] = o.finalEquity
		drawdowns[i] = o.maxDrawdown
		if o.finalEquity > initialCapital {
			profitable++
		}
	}
	sort.Float64s(finals)
	sort.Float64s(drawdowns)

	return SimulationResult{
		Status:           "success",
		ConsistencyScore: float64(profitable) / float64(s.Trials),
		FinalEquityP5:    percentile(finals, 0.05),
		FinalEquityP95:   percentile(finals, 0.95),
		DrawdownP95:      percentile(drawdowns, 0.05), // drawdowns are <= 0, 5th value is the worst tail
	}, nil
}

func newTrialRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(rand.Int63()))
	}
	return rand.New(rand.NewSource(seed))
}

// runTrial resamples the return series with replacement and replays it
func runTrial(rng *rand.Rand, returns []float64, capital float64) trialOutcome {
	equity := capital
	peak := capital
	maxDD := 0.0

	for range returns {
		r := returns[rng.Intn(len(returns))]
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (equity - peak) / peak * 100
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return trialOutcome{finalEquity: equity, maxDrawdown: maxDD}
}

// percentile reads the p-quantile from an ascending-sorted slice
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
