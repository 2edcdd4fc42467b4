package genetic

import (
	"context"
	"errors"
	"math"
	"testing"

	"evo-trading-bot/internal/logging"
)

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr"})
}

// targetEvaluator rewards fast_period near 25 and threshold near 0.5
func targetEvaluator(_ context.Context, c *Chromosome) (map[string]float64, error) {
	fast := toFloat(c.Parameters["fast_period"])
	thr := toFloat(c.Parameters["threshold"])
	score := -math.Abs(fast-25) - math.Abs(thr-0.5)*10
	return map[string]float64{"total_return": score}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.Generations = 8
	cfg.EliteCount = 3
	cfg.Seed = 11
	return cfg
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		schema Schema
	}{
		{"tiny population", func(c *Config) { c.PopulationSize = 1 }, testSchema()},
		{"elites fill population", func(c *Config) { c.EliteCount = 20 }, testSchema()},
		{"bad schema", func(*Config) {}, Schema{"p": {Type: ParamInt, Min: 9, Max: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := NewEngine("x", tt.schema, cfg, targetEvaluator, quietLogger()); err == nil {
				t.Error("expected constructor error")
			}
		})
	}

	if _, err := NewEngine("x", testSchema(), testConfig(), nil, quietLogger()); err == nil {
		t.Error("nil evaluator should be rejected")
	}
}

func TestInitializePopulation(t *testing.T) {
	engine, err := NewEngine("seed", testSchema(), testConfig(), targetEvaluator, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	pop := engine.InitializePopulation()
	if len(pop) != 20 {
		t.Fatalf("population size = %d, want 20", len(pop))
	}
	seen := make(map[string]bool)
	for _, c := range pop {
		if c.Generation != 0 {
			t.Errorf("seed generation = %d, want 0", c.Generation)
		}
		if len(c.ParentIDs) != 0 {
			t.Errorf("seed chromosome has parents: %v", c.ParentIDs)
		}
		if c.Fitness != nil {
			t.Error("seed chromosome should start unevaluated")
		}
		if seen[c.ID] {
			t.Errorf("duplicate chromosome id %s", c.ID)
		}
		seen[c.ID] = true
		if v := c.Parameters["fast_period"].(int); v < 2 || v > 50 {
			t.Errorf("seed gene %d outside schema bounds", v)
		}
	}
}

func TestEvolveImproves(t *testing.T) {
	engine, err := NewEngine("run", testSchema(), testConfig(), targetEvaluator, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	res, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 8 {
		t.Fatalf("history rows = %d, want 8", len(res.History))
	}

	first := res.History[0].BestFitness
	last := res.History[len(res.History)-1].BestFitness
	if last < first {
		t.Errorf("elitism violated: best fell from %v to %v", first, last)
	}
	for i := 1; i < len(res.History); i++ {
		if res.History[i].BestFitness < res.History[i-1].BestFitness-1e-9 {
			t.Errorf("best fitness regressed at generation %d: %v -> %v",
				i, res.History[i-1].BestFitness, res.History[i].BestFitness)
		}
	}

	if res.Best == nil || res.Best.Fitness == nil {
		t.Fatal("result must carry an evaluated best chromosome")
	}
	if res.Best.FitnessValue() != last {
		t.Errorf("best fitness %v disagrees with history %v", res.Best.FitnessValue(), last)
	}
}

func TestEvolveRespectsBounds(t *testing.T) {
	engine, err := NewEngine("bounds", testSchema(), testConfig(), targetEvaluator, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	res, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range res.Population {
		if v := c.Parameters["fast_period"].(int); v < 2 || v > 50 {
			t.Errorf("chromosome %s: fast_period %d escaped bounds", c.ID, v)
		}
		if v := c.Parameters["threshold"].(float64); v < 0.1 || v > 0.9 {
			t.Errorf("chromosome %s: threshold %v escaped bounds", c.ID, v)
		}
		s := c.Parameters["interval"].(string)
		if s != "1h" && s != "4h" && s != "1d" {
			t.Errorf("chromosome %s: interval %q not in categories", c.ID, s)
		}
	}
}

func TestEvolveDeterministicWithSeed(t *testing.T) {
	run := func() *Result {
		engine, err := NewEngine("det", testSchema(), testConfig(), targetEvaluator, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		res, err := engine.Evolve(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	a, b := run(), run()
	if a.Best.FitnessValue() != b.Best.FitnessValue() {
		t.Errorf("seeded runs diverged: %v vs %v", a.Best.FitnessValue(), b.Best.FitnessValue())
	}
	for i := range a.History {
		if a.History[i].BestFitness != b.History[i].BestFitness {
			t.Errorf("generation %d diverged: %v vs %v", i, a.History[i].BestFitness, b.History[i].BestFitness)
		}
	}
}

func TestEvolveArchivesEveryGeneration(t *testing.T) {
	cfg := testConfig()
	engine, err := NewEngine("arch", testSchema(), cfg, targetEvaluator, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	res, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Archive) != cfg.Generations {
		t.Fatalf("archived generations = %d, want %d", len(res.Archive), cfg.Generations)
	}
	for gen := 0; gen < cfg.Generations; gen++ {
		pop := res.Archive[gen]
		if len(pop) != cfg.PopulationSize {
			t.Fatalf("generation %d archive holds %d chromosomes, want %d", gen, len(pop), cfg.PopulationSize)
		}
		for _, c := range pop {
			if c.Generation != gen {
				t.Errorf("generation %d archive holds chromosome from generation %d", gen, c.Generation)
			}
		}
	}

	// The winner must be reachable through the final archived generation
	found := false
	for _, c := range res.Archive[cfg.Generations-1] {
		if c.ID == res.Best.ID {
			found = true
		}
	}
	if !found {
		t.Error("best chromosome missing from the final archived generation")
	}
}

func TestNextGenerationPreservesElitesAndSize(t *testing.T) {
	cfg := testConfig()
	engine, err := NewEngine("pool", testSchema(), cfg, targetEvaluator, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	population := engine.InitializePopulation()
	for _, c := range population {
		perf, _ := targetEvaluator(context.Background(), c)
		c.Performance = perf
		c.SetFitness(ComputeFitness(perf))
	}

	next := engine.nextGeneration(population, 1)
	if len(next) != cfg.PopulationSize {
		t.Fatalf("next generation size = %d, want %d", len(next), cfg.PopulationSize)
	}

	sortByFitness(population)
	for i := 0; i < cfg.EliteCount; i++ {
		if next[i].FitnessValue() != population[i].FitnessValue() {
			t.Errorf("elite %d fitness = %v, want carried %v", i, next[i].FitnessValue(), population[i].FitnessValue())
		}
		if next[i].ID == population[i].ID {
			t.Errorf("elite %d kept its old identity", i)
		}
	}
	for i := cfg.EliteCount; i < len(next); i++ {
		if next[i].Generation != 1 {
			t.Errorf("offspring %d generation = %d, want 1", i, next[i].Generation)
		}
		if n := len(next[i].ParentIDs); n != 1 && n != 2 {
			t.Errorf("offspring %d has %d parents, want 1 or 2", i, n)
		}
	}
}

func TestEvolveFailedEvaluationsRankLast(t *testing.T) {
	calls := 0
	flaky := func(ctx context.Context, c *Chromosome) (map[string]float64, error) {
		calls++
		if calls%3 == 0 {
			return nil, errors.New("backtest unavailable")
		}
		return targetEvaluator(ctx, c)
	}

	engine, err := NewEngine("flaky", testSchema(), testConfig(), flaky, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	res, err := engine.Evolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if res.History[0].Failed == 0 {
		t.Error("expected some failed evaluations in generation 0")
	}
	if res.Best == nil || math.IsInf(res.Best.FitnessValue(), -1) {
		t.Error("best chromosome must be an evaluated one")
	}
}

func TestEvolveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, err := NewEngine("cancel", testSchema(), testConfig(), targetEvaluator, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	res, err := engine.Evolve(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("cancellation should still return the partial result")
	}
	if len(res.History) != 0 {
		t.Errorf("pre-cancelled run should have no history, got %d rows", len(res.History))
	}
}

func TestComputeFitness(t *testing.T) {
	if !math.IsInf(ComputeFitness(nil), -1) {
		t.Error("missing performance must rank at -Inf")
	}

	perf := map[string]float64{
		"total_return": 10,
		"sharpe_ratio": 1.5,
		"win_rate":     60,
		"max_drawdown": -20,
	}
	want := 10 + 1.5*10 + 60*0.1 + (-20)*0.5
	if got := ComputeFitness(perf); math.Abs(got-want) > 1e-9 {
		t.Errorf("fitness = %v, want %v", got, want)
	}
}
