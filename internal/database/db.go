package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"evo-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database connection settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB opens and verifies a connection pool
func NewDB(cfg Config, logger *logging.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.WithComponent("database")
	log.Info("Connected to PostgreSQL database %s", cfg.Database)
	return &DB{Pool: pool, logger: log}, nil
}

// Close shuts down the pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("Database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS backtest_results (
			run_id UUID PRIMARY KEY,
			status VARCHAR(10) NOT NULL,
			strategy_id VARCHAR(100) NOT NULL,
			strategy_type VARCHAR(50) NOT NULL,
			parameters JSONB,
			asset_class VARCHAR(10) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			total_return DECIMAL(12, 4),
			sharpe_ratio DECIMAL(12, 4),
			sortino_ratio DECIMAL(12, 4),
			max_drawdown DECIMAL(12, 4),
			win_rate DECIMAL(8, 4),
			trades_count INTEGER,
			oos_metrics JSONB,
			monte_carlo JSONB,
			error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_results_strategy ON backtest_results(strategy_id)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_results_symbol ON backtest_results(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_results_created ON backtest_results(created_at)`,

		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES backtest_results(run_id) ON DELETE CASCADE,
			entry_time TIMESTAMP NOT NULL,
			exit_time TIMESTAMP NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			side VARCHAR(5) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			profit_loss DECIMAL(20, 8) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id)`,

		`CREATE TABLE IF NOT EXISTS evolution_runs (
			id UUID PRIMARY KEY,
			strategy_type VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			asset_class VARCHAR(10) NOT NULL,
			status VARCHAR(20) NOT NULL,
			generations INTEGER NOT NULL,
			population_size INTEGER NOT NULL,
			best_chromosome JSONB,
			history JSONB,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evolution_runs_status ON evolution_runs(status)`,

		`CREATE TABLE IF NOT EXISTS chromosomes (
			id UUID PRIMARY KEY,
			evolution_run_id UUID REFERENCES evolution_runs(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL,
			parameters JSONB NOT NULL,
			generation INTEGER NOT NULL,
			parent_ids JSONB,
			fitness DOUBLE PRECISION,
			performance JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chromosomes_run ON chromosomes(evolution_run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chromosomes_fitness ON chromosomes(fitness DESC NULLS LAST)`,

		`CREATE TABLE IF NOT EXISTS rotation_history (
			id SERIAL PRIMARY KEY,
			from_strategy VARCHAR(100),
			to_strategy VARCHAR(100) NOT NULL,
			reason VARCHAR(30) NOT NULL,
			rotated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}
