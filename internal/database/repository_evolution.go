package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"evo-trading-bot/internal/genetic"
)

// EvolutionRun is the persisted form of one evolutionary optimization
type EvolutionRun struct {
	ID             string                    `json:"id"`
	StrategyType   string                    `json:"strategy_type"`
	Symbol         string                    `json:"symbol"`
	AssetClass     string                    `json:"asset_class"`
	Status         string                    `json:"status"`
	Generations    int                       `json:"generations"`
	PopulationSize int                       `json:"population_size"`
	Best           *genetic.Chromosome       `json:"best,omitempty"`
	History        []genetic.GenerationStats `json:"history,omitempty"`
	Error          string                    `json:"error,omitempty"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     *time.Time                `json:"finished_at,omitempty"`
}

// SaveEvolutionRun inserts or updates a run row
func (r *Repository) SaveEvolutionRun(ctx context.Context, run EvolutionRun) error {
	var best, history []byte
	if run.Best != nil {
		best, _ = json.Marshal(run.Best.ToMap())
	}
	if len(run.History) > 0 {
		history, _ = json.Marshal(run.History)
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO evolution_runs (
			id, strategy_type, symbol, asset_class, status,
			generations, population_size, best_chromosome, history, error,
			started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			best_chromosome = EXCLUDED.best_chromosome,
			history = EXCLUDED.history,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`,
		run.ID, run.StrategyType, run.Symbol, run.AssetClass, run.Status,
		run.Generations, run.PopulationSize, best, history, nullable(run.Error),
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save evolution run: %w", err)
	}
	return nil
}

// GetEvolutionRun loads one run row
func (r *Repository) GetEvolutionRun(ctx context.Context, id string) (EvolutionRun, error) {
	var run EvolutionRun
	var best, history []byte
	var errMsg *string

	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, strategy_type, symbol, asset_class, status,
		       generations, population_size, best_chromosome, history, error,
		       started_at, finished_at
		FROM evolution_runs WHERE id = $1
	`, id).Scan(
		&run.ID, &run.StrategyType, &run.Symbol, &run.AssetClass, &run.Status,
		&run.Generations, &run.PopulationSize, &best, &history, &errMsg,
		&run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, fmt.Errorf("failed to load evolution run: %w", err)
	}

	if errMsg != nil {
		run.Error = *errMsg
	}
	if len(best) > 0 {
		var m map[string]interface{}
		if json.Unmarshal(best, &m) == nil {
			run.Best = genetic.FromMap(m)
		}
	}
	if len(history) > 0 {
		_ = json.Unmarshal(history, &run.History)
	}
	return run, nil
}

// SaveChromosomes stores a population snapshot for a run
func (r *Repository) SaveChromosomes(ctx context.Context, runID string, population []*genetic.Chromosome) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO chromosomes (
			id, evolution_run_id, name, parameters, generation,
			parent_ids, fitness, performance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			fitness = EXCLUDED.fitness,
			performance = EXCLUDED.performance
	`
	for _, c := range population {
		params, _ := json.Marshal(c.Parameters)
		var parents, perf []byte
		if len(c.ParentIDs) > 0 {
			parents, _ = json.Marshal(c.ParentIDs)
		}
		if len(c.Performance) > 0 {
			perf, _ = json.Marshal(c.Performance)
		}
		if _, err := tx.Exec(ctx, query,
			c.ID, runID, c.Name, params, c.Generation,
			parents, c.Fitness, perf, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert chromosome %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// TopChromosomes returns the fittest stored chromosomes for a run
func (r *Repository) TopChromosomes(ctx context.Context, runID string, limit int) ([]*genetic.Chromosome, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, parameters, generation, parent_ids, fitness, performance, created_at
		FROM chromosomes
		WHERE evolution_run_id = $1 AND fitness IS NOT NULL
		ORDER BY fitness DESC
		LIMIT $2
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chromosomes: %w", err)
	}
	defer rows.Close()

	var out []*genetic.Chromosome
	for rows.Next() {
		c := &genetic.Chromosome{}
		var params, parents, perf []byte
		if err := rows.Scan(&c.ID, &c.Name, &params, &c.Generation, &parents, &c.Fitness, &perf, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chromosome: %w", err)
		}
		_ = json.Unmarshal(params, &c.Parameters)
		if len(parents) > 0 {
			_ = json.Unmarshal(parents, &c.ParentIDs)
		}
		if len(perf) > 0 {
			_ = json.Unmarshal(perf, &c.Performance)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
