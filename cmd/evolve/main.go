// Command evolve runs a single evolution job from the command line and
// prints the winning parameter sets. Useful for tuning a strategy without
// standing up the full API server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"evo-trading-bot/config"
	"evo-trading-bot/internal/backtest"
	"evo-trading-bot/internal/events"
	"evo-trading-bot/internal/genetic"
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/orchestrator"
	"evo-trading-bot/internal/rotation"
)

// defaultSchemas covers the built-in strategy types when no schema file
// is supplied.
var defaultSchemas = map[string]genetic.Schema{
	"sma_crossover": {
		"fast_period": {Type: genetic.ParamInt, Min: 3, Max: 30},
		"slow_period": {Type: genetic.ParamInt, Min: 20, Max: 120},
	},
	"rsi_momentum": {
		"rsi_period": {Type: genetic.ParamInt, Min: 5, Max: 30},
		"overbought": {Type: genetic.ParamFloat, Min: 60, Max: 90},
		"oversold":   {Type: genetic.ParamFloat, Min: 10, Max: 40},
	},
	"market_sentiment": {
		"lookback":  {Type: genetic.ParamInt, Min: 5, Max: 60},
		"threshold": {Type: genetic.ParamFloat, Min: 0.05, Max: 0.6},
	},
}

func main() {
	godotenv.Load()
	godotenv.Load("../../.env")

	strategyType := flag.String("strategy", "sma_crossover", "strategy type to optimize")
	symbol := flag.String("symbol", "", "market symbol (required)")
	assetClass := flag.String("class", "equity", "asset class: equity, crypto or forex")
	interval := flag.String("interval", "1d", "bar interval")
	days := flag.Int("days", 365, "lookback window in days")
	generations := flag.Int("generations", 0, "generations (0 = config default)")
	population := flag.Int("population", 0, "population size (0 = config default)")
	seed := flag.Int64("seed", 0, "random seed (0 = time-seeded)")
	schemaFile := flag.String("schema", "", "JSON parameter schema file (optional)")
	top := flag.Int("top", 5, "number of winners to print")
	flag.Parse()

	out := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()

	if *symbol == "" {
		out.Fatal().Msg("-symbol is required")
	}

	cfg, err := config.Load()
	if err != nil {
		out.Fatal().Err(err).Msg("failed to load configuration")
	}

	schema, ok := defaultSchemas[*strategyType]
	if *schemaFile != "" {
		raw, err := os.ReadFile(*schemaFile)
		if err != nil {
			out.Fatal().Err(err).Str("file", *schemaFile).Msg("failed to read schema file")
		}
		schema = genetic.Schema{}
		if err := json.Unmarshal(raw, &schema); err != nil {
			out.Fatal().Err(err).Msg("failed to parse schema file")
		}
	} else if !ok {
		out.Fatal().Str("strategy", *strategyType).Msg("no built-in schema, pass -schema")
	}

	// Internal components log through the structured logger; keep it quiet
	// so the console output stays readable.
	logger := logging.New(&logging.Config{Level: "WARN", Output: "stderr"})

	fetcher := market.NewClient(market.ClientConfig{
		BaseURL:   cfg.DataSourceConfig.BaseURL,
		APIKey:    cfg.DataSourceConfig.APIKey,
		Timeout:   time.Duration(cfg.DataSourceConfig.TimeoutSeconds) * time.Second,
		RateLimit: cfg.ResilienceConfig.RateLimitPerMinute,
	})
	registry := backtest.NewRegistry(fetcher, backtest.NewBootstrapSimulator(cfg.BacktestConfig.MonteCarloRuns), logger)
	bus := events.NewBus()

	bus.Subscribe(events.EventGenerationCompleted, func(e events.Event) {
		out.Info().
			Interface("generation", e.Data["generation"]).
			Interface("best_fitness", e.Data["best_fitness"]).
			Interface("mean_fitness", e.Data["mean_fitness"]).
			Msg("generation completed")
	})

	orch := orchestrator.New(registry, rotation.NewRotator(logger), bus, nil, orchestrator.Config{
		Template: backtest.Request{
			InitialCapital:   cfg.BacktestConfig.InitialCapital,
			CommissionPct:    cfg.BacktestConfig.CommissionPct,
			SlippagePct:      cfg.BacktestConfig.SlippagePct,
			RunOOSValidation: true,
			RunMonteCarlo:    true,
		},
		GAConfig: genetic.Config{
			PopulationSize: cfg.GeneticConfig.PopulationSize,
			Generations:    cfg.GeneticConfig.Generations,
			MutationRate:   cfg.GeneticConfig.MutationRate,
			CrossoverRate:  cfg.GeneticConfig.CrossoverRate,
			EliteCount:     cfg.GeneticConfig.EliteSize,
			TournamentSize: cfg.GeneticConfig.TournamentSize,
			Seed:           *seed,
		},
	}, logger)

	end := time.Now().UTC()
	run, err := orch.StartEvolution(context.Background(), orchestrator.EvolutionRequest{
		StrategyType:   *strategyType,
		Symbol:         *symbol,
		AssetClass:     market.AssetClass(*assetClass),
		StartDate:      end.AddDate(0, 0, -*days),
		EndDate:        end,
		Interval:       *interval,
		Schema:         schema,
		Generations:    *generations,
		PopulationSize: *population,
	})
	if err != nil {
		out.Fatal().Err(err).Msg("failed to start evolution")
	}
	out.Info().Str("run_id", run.ID).Str("symbol", *symbol).Str("strategy", *strategyType).Msg("evolution started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

poll:
	for {
		select {
		case <-sigChan:
			out.Warn().Msg("interrupted, cancelling run")
			orch.CancelRun(run.ID)
		case <-ticker.C:
			current, err := orch.GetRun(run.ID)
			if err != nil {
				out.Fatal().Err(err).Msg("run disappeared")
			}
			switch current.Status {
			case orchestrator.RunCompleted, orchestrator.RunFailed, orchestrator.RunCancelled:
				run = current
				break poll
			}
		}
	}

	if run.Status != orchestrator.RunCompleted {
		out.Fatal().Str("status", string(run.Status)).Str("error", run.Error).Msg("evolution did not complete")
	}

	best, err := orch.BestStrategies(run.ID, *top)
	if err != nil {
		out.Fatal().Err(err).Msg("failed to rank results")
	}

	fmt.Printf("\nTop %d parameter sets for %s on %s:\n\n", len(best), *strategyType, *symbol)
	for i, chromo := range best {
		params, _ := json.Marshal(chromo.Parameters)
		fmt.Printf("%2d. fitness=%.4f  return=%.2f%%  sharpe=%.2f  params=%s\n",
			i+1,
			chromo.FitnessValue(),
			chromo.Performance["total_return"],
			chromo.Performance["sharpe_ratio"],
			params,
		)
	}

	orch.Shutdown()
}
