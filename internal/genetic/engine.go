package genetic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"evo-trading-bot/internal/logging"
)

// Config tunes the evolutionary run
type Config struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`  // per-gene probability
	CrossoverRate  float64 `json:"crossover_rate"` // per-offspring probability
	EliteCount     int     `json:"elite_count"`
	TournamentSize int     `json:"tournament_size"`
	Seed           int64   `json:"seed"` // 0 = nondeterministic
}

// DefaultConfig returns the standard GA tuning
func DefaultConfig() Config {
	return Config{
		PopulationSize: 50,
		Generations:    20,
		MutationRate:   0.1,
		CrossoverRate:  0.8,
		EliteCount:     5,
		TournamentSize: 3,
	}
}

// Evaluator scores one chromosome, returning its performance map. The
// engine derives fitness from the map; an error leaves the chromosome
// unevaluated and it ranks at negative infinity.
type Evaluator func(ctx context.Context, c *Chromosome) (map[string]float64, error)

// GenerationStats is one row of the evolution history
type GenerationStats struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	BestID      string  `json:"best_id"`
	Evaluated   int     `json:"evaluated"`
	Failed      int     `json:"failed"`
}

// Result is the outcome of an evolutionary run. Archive holds every
// scored generation keyed by generation number, so lineage survives
// past the final population.
type Result struct {
	Best       *Chromosome           `json:"best"`
	Population []*Chromosome         `json:"population"`
	Archive    map[int][]*Chromosome `json:"archive,omitempty"`
	History    []GenerationStats     `json:"history"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Engine runs the generational loop over one parameter schema
type Engine struct {
	schema   Schema
	keys     []string // schema names in sorted order, so RNG draws replay identically under one seed
	cfg      Config
	name     string
	evaluate Evaluator
	rng      *rand.Rand
	logger   *logging.Logger

	onGeneration func(GenerationStats)
}

// OnGeneration registers a progress callback invoked after each
// generation has been scored. Must be set before Evolve.
func (e *Engine) OnGeneration(fn func(GenerationStats)) {
	e.onGeneration = fn
}

// NewEngine validates the schema and builds an engine
func NewEngine(name string, schema Schema, cfg Config, evaluate Evaluator, logger *logging.Logger) (*Engine, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameter schema: %w", err)
	}
	if cfg.PopulationSize < 2 {
		return nil, fmt.Errorf("population size %d too small", cfg.PopulationSize)
	}
	if cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("elite count %d must be below population size %d", cfg.EliteCount, cfg.PopulationSize)
	}
	if evaluate == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	keys := make([]string, 0, len(schema))
	for name := range schema {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		schema:   schema,
		keys:     keys,
		cfg:      cfg,
		name:     name,
		evaluate: evaluate,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.WithComponent("genetic"),
	}, nil
}

// InitializePopulation draws a random generation-zero population
func (e *Engine) InitializePopulation() []*Chromosome {
	pop := make([]*Chromosome, e.cfg.PopulationSize)
	for i := range pop {
		params := make(map[string]interface{}, len(e.schema))
		for _, name := range e.keys {
			params[name] = e.schema[name].Random(e.rng)
		}
		pop[i] = NewChromosome(fmt.Sprintf("%s-g0-%d", e.name, i), params, 0)
	}
	return pop
}

// Evolve runs the full generational loop. Cancellation is honored at
// generation boundaries; the partial result is returned alongside the
// context error.
func (e *Engine) Evolve(ctx context.Context) (*Result, error) {
	result := &Result{
		StartedAt: time.Now().UTC(),
		Archive:   make(map[int][]*Chromosome, e.cfg.Generations),
	}
	population := e.InitializePopulation()

	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Evolution cancelled at generation %d", gen)
			result.Population = population
			result.Best = best(population)
			result.FinishedAt = time.Now().UTC()
			return result, err
		}

		stats := e.evaluatePopulation(ctx, population, gen)
		result.Archive[gen] = append([]*Chromosome(nil), population...)
		result.History = append(result.History, stats)
		if e.onGeneration != nil {
			e.onGeneration(stats)
		}
		e.logger.Info("Generation %d: best=%.4f mean=%.4f failed=%d",
			gen, stats.BestFitness, stats.MeanFitness, stats.Failed)

		if gen == e.cfg.Generations-1 {
			break
		}
		population = e.nextGeneration(population, gen+1)
	}

	sortByFitness(population)
	result.Population = population
	result.Best = best(population)
	result.FinishedAt = time.Now().UTC()
	return result, nil
}

// evaluatePopulation scores every unevaluated chromosome
func (e *Engine) evaluatePopulation(ctx context.Context, population []*Chromosome, gen int) GenerationStats {
	stats := GenerationStats{Generation: gen, BestFitness: math.Inf(-1)}

	var fitSum float64
	var fitCount int
	for _, c := range population {
		if c.Fitness == nil {
			perf, err := e.evaluate(ctx, c)
			if err != nil {
				e.logger.WithError(err).Warn("Evaluation failed for chromosome %s", c.ID)
				stats.Failed++
			} else {
				c.Performance = perf
				c.SetFitness(ComputeFitness(perf))
			}
			stats.Evaluated++
		}

		f := c.FitnessValue()
		if f > stats.BestFitness {
			stats.BestFitness = f
			stats.BestID = c.ID
		}
		if !math.IsInf(f, -1) {
			fitSum += f
			fitCount++
		}
	}
	if fitCount > 0 {
		stats.MeanFitness = fitSum / float64(fitCount)
	}
	return stats
}

// nextGeneration builds the successor population: elites first, then a
// tournament-selected mating pool supplies crossover parents and clone
// sources until the population is full.
func (e *Engine) nextGeneration(population []*Chromosome, gen int) []*Chromosome {
	sortByFitness(population)

	next := make([]*Chromosome, 0, e.cfg.PopulationSize)
	for i := 0; i < e.cfg.EliteCount && i < len(population); i++ {
		elite := population[i].CloneInto(gen)
		// Same genes evaluate identically, so the score carries over
		elite.Performance = population[i].Performance
		elite.Fitness = population[i].Fitness
		next = append(next, elite)
	}

	pool := make([]*Chromosome, e.cfg.PopulationSize-len(next))
	for i := range pool {
		pool[i] = e.tournament(population)
	}

	for len(next) < e.cfg.PopulationSize {
		var child *Chromosome
		if e.rng.Float64() < e.cfg.CrossoverRate && len(pool) >= 2 {
			// Two distinct pool slots, though tournaments may have
			// filled both with the same winner
			i := e.rng.Intn(len(pool))
			j := e.rng.Intn(len(pool) - 1)
			if j >= i {
				j++
			}
			child = e.crossover(pool[i], pool[j], gen)
		} else {
			child = e.mutateClone(pool[e.rng.Intn(len(pool))], gen)
		}
		e.mutateGenes(child)
		next = append(next, child)
	}
	return next
}

// tournament picks the fittest of k random contenders. A pool smaller
// than two degrades to returning the sole member.
func (e *Engine) tournament(population []*Chromosome) *Chromosome {
	if len(population) == 1 {
		return population[0]
	}
	best := population[e.rng.Intn(len(population))]
	for i := 1; i < e.cfg.TournamentSize; i++ {
		c := population[e.rng.Intn(len(population))]
		if c.FitnessValue() > best.FitnessValue() {
			best = c
		}
	}
	return best
}

// crossover blends two parents gene by gene. Numeric genes interpolate
// with alpha drawn from [-0.1, 1.1] and are clamped back into bounds;
// discrete genes come from either parent.
func (e *Engine) crossover(p1, p2 *Chromosome, gen int) *Chromosome {
	params := make(map[string]interface{}, len(e.schema))
	for _, name := range e.keys {
		spec := e.schema[name]
		v1, v2 := p1.Parameters[name], p2.Parameters[name]
		switch spec.Type {
		case ParamInt, ParamFloat:
			alpha := -0.1 + e.rng.Float64()*1.2
			blended := toFloat(v1) + alpha*(toFloat(v2)-toFloat(v1))
			params[name] = spec.Clamp(blended)
		default:
			if e.rng.Intn(2) == 0 {
				params[name] = v1
			} else {
				params[name] = v2
			}
		}
	}
	return NewChromosome(fmt.Sprintf("%s-g%d", e.name, gen), params, gen, p1.ID, p2.ID)
}

// mutateClone copies one parent; mutateGenes supplies the variation
func (e *Engine) mutateClone(p *Chromosome, gen int) *Chromosome {
	c := p.CloneInto(gen)
	c.Name = fmt.Sprintf("%s-g%d", e.name, gen)
	return c
}

// mutateGenes perturbs each gene independently at the mutation rate
func (e *Engine) mutateGenes(c *Chromosome) {
	for _, name := range e.keys {
		if e.rng.Float64() < e.cfg.MutationRate {
			c.Parameters[name] = e.schema[name].Mutate(c.Parameters[name], e.rng)
			// A changed genome invalidates any inherited score
			c.Fitness = nil
			c.Performance = nil
		}
	}
}

// ComputeFitness folds a performance map into a single score. Drawdown is
// non-positive, so its term is a penalty.
func ComputeFitness(perf map[string]float64) float64 {
	if perf == nil {
		return math.Inf(-1)
	}
	return perf["total_return"] +
		perf["sharpe_ratio"]*10 +
		perf["win_rate"]*0.1 +
		perf["max_drawdown"]*0.5
}

func sortByFitness(population []*Chromosome) {
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].FitnessValue() > population[j].FitnessValue()
	})
}

func best(population []*Chromosome) *Chromosome {
	if len(population) == 0 {
		return nil
	}
	b := population[0]
	for _, c := range population[1:] {
		if c.FitnessValue() > b.FitnessValue() {
			b = c
		}
	}
	return b
}
