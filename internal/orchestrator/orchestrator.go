// Package orchestrator ties the system together: it schedules evolution
// runs, evaluates chromosomes through the backtest engines, promotes
// winners into the rotation roster and reports overall health.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"evo-trading-bot/internal/backtest"
	"evo-trading-bot/internal/events"
	"evo-trading-bot/internal/genetic"
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/rotation"
	"evo-trading-bot/internal/strategy"
)

// Run lifecycle states
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// ErrRunNotFound is returned for unknown run ids
var ErrRunNotFound = errors.New("evolution run not found")

// EvolutionRequest describes one optimization job
type EvolutionRequest struct {
	StrategyType string            `json:"strategy_type"`
	Symbol       string            `json:"symbol"`
	AssetClass   market.AssetClass `json:"asset_class"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      time.Time         `json:"end_date"`
	Interval     string            `json:"interval"`
	Schema       genetic.Schema    `json:"schema"`

	// Zero values fall back to the orchestrator's configured defaults
	Generations    int `json:"generations,omitempty"`
	PopulationSize int `json:"population_size,omitempty"`
}

// Run tracks one scheduled evolution job
type Run struct {
	ID         string           `json:"id"`
	Request    EvolutionRequest `json:"request"`
	Status     RunStatus        `json:"status"`
	Result     *genetic.Result  `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`

	cancel context.CancelFunc
}

// ResultStore persists backtest results; satisfied by database.Repository
type ResultStore interface {
	SaveBacktestResult(ctx context.Context, res backtest.Result) error
}

// BreakerReporter exposes circuit breaker state; satisfied by market.Client
type BreakerReporter interface {
	BreakerStats() map[string]interface{}
}

// Config carries the orchestrator's evaluation defaults
type Config struct {
	// Template supplies capital, costs and validation toggles for every
	// chromosome evaluation; per-run fields are overwritten.
	Template backtest.Request
	// GAConfig supplies population tuning when requests leave it zero
	GAConfig genetic.Config
	// PromotedPriority is the roster priority given to activated winners
	PromotedPriority int
}

// Orchestrator coordinates evolution, evaluation and rotation
type Orchestrator struct {
	engines  *backtest.Registry
	rotator  *rotation.Rotator
	bus      *events.Bus
	store    ResultStore
	breakers []BreakerReporter
	template backtest.Request
	gaConfig genetic.Config
	priority int
	logger   *logging.Logger

	mu    sync.Mutex
	runs  map[string]*Run
	order []string
	wg    sync.WaitGroup
}

// New creates an orchestrator. store may be nil when persistence is off;
// breakers may be empty.
func New(engines *backtest.Registry, rotator *rotation.Rotator, bus *events.Bus, store ResultStore, cfg Config, logger *logging.Logger, breakers ...BreakerReporter) *Orchestrator {
	gaCfg := cfg.GAConfig
	if gaCfg.PopulationSize == 0 {
		gaCfg = genetic.DefaultConfig()
	}
	priority := cfg.PromotedPriority
	if priority <= 0 || priority > 100 {
		priority = 80
	}
	return &Orchestrator{
		engines:  engines,
		rotator:  rotator,
		bus:      bus,
		store:    store,
		breakers: breakers,
		template: cfg.Template,
		gaConfig: gaCfg,
		priority: priority,
		logger:   logger.WithComponent("orchestrator"),
		runs:     make(map[string]*Run),
	}
}

// StartEvolution validates and schedules a run; the GA executes in the
// background and the returned run can be polled by id.
func (o *Orchestrator) StartEvolution(ctx context.Context, req EvolutionRequest) (Run, error) {
	if req.StrategyType == "" || req.Symbol == "" {
		return Run{}, fmt.Errorf("strategy_type and symbol are required")
	}
	if len(req.Schema) == 0 {
		return Run{}, fmt.Errorf("parameter schema is required")
	}
	if err := req.Schema.Validate(); err != nil {
		return Run{}, err
	}
	if !strategy.IsRegistered(req.StrategyType) {
		return Run{}, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, req.StrategyType)
	}
	if _, err := o.engines.Get(req.AssetClass); err != nil {
		return Run{}, err
	}

	gaCfg := o.gaConfig
	if req.Generations > 0 {
		gaCfg.Generations = req.Generations
	}
	if req.PopulationSize > 0 {
		gaCfg.PopulationSize = req.PopulationSize
	}

	run := &Run{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    RunPending,
		CreatedAt: time.Now().UTC(),
	}

	engine, err := genetic.NewEngine(req.StrategyType, req.Schema, gaCfg, o.evaluator(req), o.logger)
	if err != nil {
		return Run{}, err
	}
	engine.OnGeneration(func(stats genetic.GenerationStats) {
		o.bus.PublishGenerationCompleted(run.ID, stats.Generation, stats.BestFitness, stats.MeanFitness)
	})

	// Detached from the request context: an HTTP disconnect must not kill
	// the run. CancelRun owns the lifetime.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run.cancel = cancel

	o.mu.Lock()
	o.runs[run.ID] = run
	o.order = append(o.order, run.ID)
	snapshot := *run
	o.mu.Unlock()

	o.bus.PublishEvolutionStarted(run.ID, req.StrategyType, req.Symbol, gaCfg.Generations)

	o.wg.Add(1)
	go o.execute(runCtx, run.ID, engine)
	return snapshot, nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, engine *genetic.Engine) {
	defer o.wg.Done()

	o.setStatus(runID, RunRunning, nil, "")
	result, err := engine.Evolve(ctx)

	switch {
	case errors.Is(err, context.Canceled):
		o.setStatus(runID, RunCancelled, result, "")
	case err != nil:
		o.setStatus(runID, RunFailed, result, err.Error())
		o.bus.PublishEvolutionFailed(runID, err.Error())
		o.bus.PublishError("orchestrator", "evolution run failed", err)
	default:
		o.setStatus(runID, RunCompleted, result, "")
		if result.Best != nil {
			o.bus.PublishEvolutionCompleted(runID, result.Best.ID, result.Best.FitnessValue())
		}
	}
}

// setStatus transitions a run, stamping the finish time on terminal
// states. A non-nil result replaces the stored one so cancelled and
// failed runs keep their partial populations.
func (o *Orchestrator) setStatus(id string, status RunStatus, result *genetic.Result, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.runs[id]
	if !ok {
		return
	}
	run.Status = status
	if result != nil {
		run.Result = result
	}
	run.Error = errMsg

	switch status {
	case RunCompleted, RunFailed, RunCancelled:
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
}

// evaluator adapts the backtest registry into a genetic fitness source.
// Non-success results become evaluation errors so the chromosome ranks
// at negative infinity without aborting the run.
func (o *Orchestrator) evaluator(req EvolutionRequest) genetic.Evaluator {
	return func(ctx context.Context, c *genetic.Chromosome) (map[string]float64, error) {
		btReq := o.template
		btReq.StrategyID = c.ID
		btReq.StrategyType = req.StrategyType
		btReq.Parameters = c.Parameters
		btReq.AssetClass = req.AssetClass
		btReq.Symbol = req.Symbol
		btReq.StartDate = req.StartDate
		btReq.EndDate = req.EndDate
		btReq.Interval = req.Interval

		res := o.engines.RunBacktest(ctx, btReq)
		o.bus.PublishBacktestCompleted(res.RunID, res.StrategyID, res.Symbol, string(res.Status), res.Metrics.TotalReturnPct)

		if res.Status != backtest.StatusSuccess {
			return nil, fmt.Errorf("backtest %s: %s", res.Status, res.Error)
		}

		if o.store != nil {
			if err := o.store.SaveBacktestResult(ctx, res); err != nil {
				o.logger.WithError(err).Warn("Failed to persist backtest result %s", res.RunID)
			}
		}

		return map[string]float64{
			"total_return":  res.Metrics.TotalReturnPct,
			"sharpe_ratio":  res.Metrics.SharpeRatio,
			"sortino_ratio": res.Metrics.SortinoRatio,
			"max_drawdown":  res.Metrics.MaxDrawdownPct,
			"win_rate":      res.Metrics.WinRatePct,
			"trades_count":  float64(res.Metrics.TradesCount),
		}, nil
	}
}

// GetRun returns a snapshot of one run
func (o *Orchestrator) GetRun(id string) (Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

// ListRuns returns snapshots of all runs in scheduling order
func (o *Orchestrator) ListRuns() []Run {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Run, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, *o.runs[id])
	}
	return out
}

// CancelRun requests cancellation; the run winds down at the next
// generation boundary.
func (o *Orchestrator) CancelRun(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if run.cancel != nil {
		run.cancel()
	}
	return nil
}

// BestStrategies returns the top evaluated chromosomes of a completed run
func (o *Orchestrator) BestStrategies(id string, limit int) ([]*genetic.Chromosome, error) {
	run, err := o.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run.Result == nil {
		return nil, fmt.Errorf("run %s has no results yet", id)
	}
	if limit <= 0 {
		limit = 10
	}

	var out []*genetic.Chromosome
	for _, c := range run.Result.Population {
		if c.Fitness == nil {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ActivateBest builds the run's best chromosome as a live strategy, adds
// it to the rotation roster and makes it active.
func (o *Orchestrator) ActivateBest(id string) (string, error) {
	run, err := o.GetRun(id)
	if err != nil {
		return "", err
	}
	if run.Status != RunCompleted || run.Result == nil || run.Result.Best == nil {
		return "", fmt.Errorf("run %s has no winner to activate", id)
	}

	best := run.Result.Best
	strat, err := strategy.New(run.Request.StrategyType, best.ID, best.Parameters)
	if err != nil {
		return "", fmt.Errorf("failed to build winning strategy: %w", err)
	}

	if err := o.rotator.AddStrategy(best.ID, strat, o.priority, true); err != nil {
		return "", err
	}
	active, _ := o.rotator.Active()
	if o.rotator.SetActive(best.ID) && active.ID != best.ID {
		o.bus.PublishStrategyRotated(active.ID, best.ID, rotation.ReasonManual)
	}
	return best.ID, nil
}

// Roster exposes the rotation roster
func (o *Orchestrator) Roster() []rotation.Entry {
	return o.rotator.Roster()
}

// SafetyStatus reports circuit breaker states and run counts
func (o *Orchestrator) SafetyStatus() map[string]interface{} {
	o.mu.Lock()
	counts := make(map[RunStatus]int)
	for _, run := range o.runs {
		counts[run.Status]++
	}
	o.mu.Unlock()

	breakerStats := make([]map[string]interface{}, 0, len(o.breakers))
	for _, b := range o.breakers {
		breakerStats = append(breakerStats, b.BreakerStats())
	}

	status := map[string]interface{}{
		"runs":     counts,
		"breakers": breakerStats,
	}
	if active, ok := o.rotator.Active(); ok {
		status["active_strategy"] = active.ID
	}
	return status
}

// Shutdown cancels every live run and waits for the workers to exit
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, run := range o.runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	o.mu.Unlock()
	o.wg.Wait()
}
