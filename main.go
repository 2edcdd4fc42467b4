package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"evo-trading-bot/config"
	"evo-trading-bot/internal/api"
	"evo-trading-bot/internal/backtest"
	"evo-trading-bot/internal/database"
	"evo-trading-bot/internal/events"
	"evo-trading-bot/internal/genetic"
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/orchestrator"
	"evo-trading-bot/internal/resilience"
	"evo-trading-bot/internal/rotation"
	"evo-trading-bot/internal/vault"
)

func main() {
	// Load .env before reading configuration
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx := context.Background()

	// Initialize event bus
	eventBus := events.NewBus()
	logger.Info("Event bus initialized")

	// Vault-managed secrets override environment values when enabled
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.Health(ctx); err != nil {
			log.Fatalf("Vault is enabled but unreachable: %v", err)
		}
		if creds, err := vaultClient.GetDatabaseCredentials(ctx); err != nil {
			logger.WithError(err).Warn("Vault database credentials unavailable, using environment")
		} else {
			cfg.DatabaseConfig.User = creds.User
			cfg.DatabaseConfig.Password = creds.Password
		}
		if creds, err := vaultClient.GetProviderCredentials(ctx, "market_data"); err != nil {
			logger.WithError(err).Warn("Vault provider credentials unavailable, using environment")
		} else if creds.APIKey != "" {
			cfg.DataSourceConfig.APIKey = creds.APIKey
		}
		logger.Info("Vault secrets loaded from %s", cfg.VaultConfig.Address)
	}

	// Initialize database when persistence is enabled
	var repo *database.Repository
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Name,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		repo = database.NewRepository(db)
		logger.Info("Database connected (%s:%d/%s)",
			cfg.DatabaseConfig.Host, cfg.DatabaseConfig.Port, cfg.DatabaseConfig.Name)
	}

	// Market data client with rate limiting, circuit breaking and retries
	dataClient := market.NewClient(market.ClientConfig{
		BaseURL:   cfg.DataSourceConfig.BaseURL,
		APIKey:    cfg.DataSourceConfig.APIKey,
		Timeout:   time.Duration(cfg.DataSourceConfig.TimeoutSeconds) * time.Second,
		RateLimit: cfg.ResilienceConfig.RateLimitPerMinute,
		Breaker: &resilience.BreakerConfig{
			Name:             "market-data",
			FailureThreshold: cfg.ResilienceConfig.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.ResilienceConfig.RecoveryTimeoutSec) * time.Second,
			TestCalls:        cfg.ResilienceConfig.HalfOpenTestCalls,
		},
		Retry: &resilience.RetryConfig{
			MaxAttempts:   cfg.ResilienceConfig.MaxRetries,
			InitialDelay:  time.Duration(cfg.ResilienceConfig.InitialDelayMs) * time.Millisecond,
			MaxDelay:      time.Duration(cfg.ResilienceConfig.MaxDelayMs) * time.Millisecond,
			BackoffFactor: cfg.ResilienceConfig.BackoffFactor,
			Jitter:        cfg.ResilienceConfig.Jitter,
		},
	})
	dataClient.OnBreakerStateChange(func(from, to resilience.BreakerState) {
		eventBus.PublishBreakerStateChanged("market-data", string(from), string(to))
	})

	// Optional Redis bar cache in front of the HTTP client
	var fetcher market.Fetcher = dataClient
	if cfg.RedisConfig.Enabled {
		fetcher = market.NewCachedFetcher(dataClient, market.CacheConfig{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
			TTL:      time.Duration(cfg.DataSourceConfig.CacheTTL) * time.Second,
		}, logger)
		logger.Info("Redis bar cache enabled (%s)", cfg.RedisConfig.Address)
	}

	// Backtest engines, one per asset class, sharing the Monte Carlo simulator
	simulator := backtest.NewBootstrapSimulator(cfg.BacktestConfig.MonteCarloRuns)
	registry := backtest.NewRegistry(fetcher, simulator, logger)

	// Persist result documents to disk for every engine
	if cfg.BacktestConfig.ResultsDir != "" {
		store := backtest.NewResultStore(cfg.BacktestConfig.ResultsDir, cfg.BacktestConfig.MaxStoredTrades, logger)
		for _, class := range []market.AssetClass{market.AssetEquity, market.AssetCrypto, market.AssetForex} {
			engine, err := registry.Get(class)
			if err != nil {
				continue
			}
			registry.Register(class, backtest.NewStoredResultsEngine(engine, store, logger))
		}
		logger.Info("Backtest results stored under %s", cfg.BacktestConfig.ResultsDir)
	}

	// Strategy rotator
	rotator := rotation.NewRotator(logger)

	// Orchestrator ties evolution, evaluation and rotation together
	var resultStore orchestrator.ResultStore
	if repo != nil && cfg.BacktestConfig.PersistToDB {
		resultStore = repo
	}
	orch := orchestrator.New(registry, rotator, eventBus, resultStore, orchestrator.Config{
		Template: backtest.Request{
			InitialCapital:   cfg.BacktestConfig.InitialCapital,
			CommissionPct:    cfg.BacktestConfig.CommissionPct,
			SlippagePct:      cfg.BacktestConfig.SlippagePct,
			RunOOSValidation: true,
			RunMonteCarlo:    true,
		},
		GAConfig: geneticConfig(cfg),
	}, logger, dataClient)

	// Persist rotation and evolution outcomes off the event bus
	if repo != nil {
		eventBus.Subscribe(events.EventStrategyRotated, func(e events.Event) {
			from, _ := e.Data["from"].(string)
			to, _ := e.Data["to"].(string)
			reason, _ := e.Data["reason"].(string)
			if err := repo.SaveRotationEvent(context.Background(), from, to, reason, e.Timestamp); err != nil {
				logger.WithError(err).Warn("Failed to persist rotation event")
			}
		})

		persistRun := func(e events.Event) {
			runID, _ := e.Data["run_id"].(string)
			run, err := orch.GetRun(runID)
			if err != nil {
				return
			}
			row := database.EvolutionRun{
				ID:           run.ID,
				StrategyType: run.Request.StrategyType,
				Symbol:       run.Request.Symbol,
				AssetClass:   string(run.Request.AssetClass),
				Status:       string(run.Status),
				Generations:  run.Request.Generations,
				Error:        run.Error,
				StartedAt:    run.CreatedAt,
				FinishedAt:   run.FinishedAt,
			}
			if run.Result != nil {
				row.Best = run.Result.Best
				row.History = run.Result.History
				row.PopulationSize = len(run.Result.Population)
				// Every scored generation goes to the archive table,
				// not just the survivors
				for gen, pop := range run.Result.Archive {
					if err := repo.SaveChromosomes(context.Background(), run.ID, pop); err != nil {
						logger.WithError(err).Warn("Failed to persist generation %d for run %s", gen, run.ID)
					}
				}
			}
			if err := repo.SaveEvolutionRun(context.Background(), row); err != nil {
				logger.WithError(err).Warn("Failed to persist evolution run %s", run.ID)
			}
		}
		eventBus.Subscribe(events.EventEvolutionCompleted, persistRun)
		eventBus.Subscribe(events.EventEvolutionFailed, persistRun)
	}

	// HTTP API
	server := api.NewServer(cfg.ServerConfig, cfg.AuthConfig, api.Deps{
		Orchestrator: orch,
		Rotator:      rotator,
		Fetcher:      fetcher,
		Repo:         repo,
		Bus:          eventBus,
	}, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()
	logger.Info("API listening at http://%s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port)

	// Background auto-rotation loop
	rotationCtx, stopRotation := context.WithCancel(ctx)
	defer stopRotation()
	if cfg.RotationConfig.Enabled && cfg.RotationConfig.Symbol != "" {
		go runRotationLoop(rotationCtx, cfg, rotator, fetcher, eventBus, logger)
	}

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	stopRotation()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server shutdown failed")
	}
	orch.Shutdown()
	logger.Info("Shutdown complete")
}

// geneticConfig maps configuration onto the GA engine defaults
func geneticConfig(cfg *config.Config) genetic.Config {
	return genetic.Config{
		PopulationSize: cfg.GeneticConfig.PopulationSize,
		Generations:    cfg.GeneticConfig.Generations,
		MutationRate:   cfg.GeneticConfig.MutationRate,
		CrossoverRate:  cfg.GeneticConfig.CrossoverRate,
		EliteCount:     cfg.GeneticConfig.EliteSize,
		TournamentSize: cfg.GeneticConfig.TournamentSize,
		Seed:           cfg.GeneticConfig.RandomSeed,
	}
}

// runRotationLoop periodically rescores the roster against fresh bars
func runRotationLoop(ctx context.Context, cfg *config.Config, rotator *rotation.Rotator, fetcher market.Fetcher, bus *events.Bus, logger *logging.Logger) {
	interval := time.Duration(cfg.RotationConfig.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log := logger.WithComponent("rotation.loop")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			end := time.Now().UTC()
			bars, err := fetcher.Fetch(ctx, market.FetchRequest{
				Symbol:     cfg.RotationConfig.Symbol,
				AssetClass: market.AssetClass(cfg.RotationConfig.AssetClass),
				StartDate:  end.AddDate(0, 0, -cfg.RotationConfig.LookbackDays),
				EndDate:    end,
				Interval:   cfg.RotationConfig.Interval,
			})
			if err != nil {
				log.WithError(err).Warn("Rotation scan fetch failed")
				continue
			}

			decision := rotator.AutoRotate(bars)
			if decision.Changed {
				logging.RotationContext(decision.From, decision.To, rotation.ReasonAuto).
					Info("Rotated active strategy")
				bus.PublishStrategyRotated(decision.From, decision.To, rotation.ReasonAuto)
			}
		}
	}
}
