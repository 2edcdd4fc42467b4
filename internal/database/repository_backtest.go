package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"evo-trading-bot/internal/backtest"
	"evo-trading-bot/internal/market"
)

// ErrNotFound is returned when a lookup matches no rows
var ErrNotFound = errors.New("not found")

// SaveBacktestResult stores a result and its trades in one transaction
func (r *Repository) SaveBacktestResult(ctx context.Context, res backtest.Result) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	params, err := json.Marshal(res.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	var oos, monteCarlo []byte
	if res.Metrics.OOS != nil {
		oos, _ = json.Marshal(res.Metrics.OOS)
	}
	if res.Metrics.MonteCarlo != nil {
		monteCarlo, _ = json.Marshal(res.Metrics.MonteCarlo)
	}

	query := `
		INSERT INTO backtest_results (
			run_id, status, strategy_id, strategy_type, parameters,
			asset_class, symbol, start_date, end_date,
			total_return, sharpe_ratio, sortino_ratio, max_drawdown,
			win_rate, trades_count, oos_metrics, monte_carlo, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err = tx.Exec(ctx, query,
		res.RunID, string(res.Status), res.StrategyID, res.StrategyType, params,
		string(res.AssetClass), res.Symbol, res.StartDate, res.EndDate,
		res.Metrics.TotalReturnPct, res.Metrics.SharpeRatio, res.Metrics.SortinoRatio, res.Metrics.MaxDrawdownPct,
		res.Metrics.WinRatePct, res.Metrics.TradesCount, oos, monteCarlo, nullable(res.Error), res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest result: %w", err)
	}

	if len(res.Trades) > 0 {
		tradeQuery := `
			INSERT INTO backtest_trades (
				run_id, entry_time, exit_time, entry_price, exit_price,
				side, quantity, profit_loss
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, t := range res.Trades {
			if _, err := tx.Exec(ctx, tradeQuery,
				res.RunID, t.EntryTime, t.ExitTime, t.EntryPrice, t.ExitPrice,
				t.Side, t.Quantity, t.ProfitLoss,
			); err != nil {
				return fmt.Errorf("failed to insert backtest trade: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetBacktestResult loads one result with its trades
func (r *Repository) GetBacktestResult(ctx context.Context, runID string) (backtest.Result, error) {
	var res backtest.Result
	var status, assetClass string
	var params, oos, monteCarlo []byte
	var errMsg *string

	query := `
		SELECT run_id, status, strategy_id, strategy_type, parameters,
		       asset_class, symbol, start_date, end_date,
		       total_return, sharpe_ratio, sortino_ratio, max_drawdown,
		       win_rate, trades_count, oos_metrics, monte_carlo, error, created_at
		FROM backtest_results WHERE run_id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, runID).Scan(
		&res.RunID, &status, &res.StrategyID, &res.StrategyType, &params,
		&assetClass, &res.Symbol, &res.StartDate, &res.EndDate,
		&res.Metrics.TotalReturnPct, &res.Metrics.SharpeRatio, &res.Metrics.SortinoRatio, &res.Metrics.MaxDrawdownPct,
		&res.Metrics.WinRatePct, &res.Metrics.TradesCount, &oos, &monteCarlo, &errMsg, &res.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("failed to load backtest result: %w", err)
	}

	res.Status = backtest.Status(status)
	res.AssetClass = market.AssetClass(assetClass)
	if errMsg != nil {
		res.Error = *errMsg
	}
	if len(params) > 0 {
		_ = json.Unmarshal(params, &res.Parameters)
	}
	if len(oos) > 0 {
		res.Metrics.OOS = &backtest.OOSMetrics{}
		_ = json.Unmarshal(oos, res.Metrics.OOS)
	}
	if len(monteCarlo) > 0 {
		res.Metrics.MonteCarlo = &backtest.MonteCarloMetrics{}
		_ = json.Unmarshal(monteCarlo, res.Metrics.MonteCarlo)
	}

	res.Trades, err = r.loadTrades(ctx, runID)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (r *Repository) loadTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT entry_time, exit_time, entry_price, exit_price, side, quantity, profit_loss
		FROM backtest_trades WHERE run_id = $1 ORDER BY entry_time
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest trades: %w", err)
	}
	defer rows.Close()

	var trades []backtest.Trade
	for rows.Next() {
		var t backtest.Trade
		if err := rows.Scan(&t.EntryTime, &t.ExitTime, &t.EntryPrice, &t.ExitPrice, &t.Side, &t.Quantity, &t.ProfitLoss); err != nil {
			return nil, fmt.Errorf("failed to scan backtest trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListBacktestResults returns recent results for a strategy, newest first
func (r *Repository) ListBacktestResults(ctx context.Context, strategyID string, limit int) ([]backtest.Result, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT run_id, status, strategy_id, strategy_type,
		       asset_class, symbol, start_date, end_date,
		       total_return, sharpe_ratio, max_drawdown, win_rate, trades_count, created_at
		FROM backtest_results
		WHERE strategy_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtest results: %w", err)
	}
	defer rows.Close()

	var results []backtest.Result
	for rows.Next() {
		var res backtest.Result
		var status, assetClass string
		if err := rows.Scan(
			&res.RunID, &status, &res.StrategyID, &res.StrategyType,
			&assetClass, &res.Symbol, &res.StartDate, &res.EndDate,
			&res.Metrics.TotalReturnPct, &res.Metrics.SharpeRatio, &res.Metrics.MaxDrawdownPct,
			&res.Metrics.WinRatePct, &res.Metrics.TradesCount, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w", err)
		}
		res.Status = backtest.Status(status)
		res.AssetClass = market.AssetClass(assetClass)
		results = append(results, res)
	}
	return results, rows.Err()
}

// SaveRotationEvent appends one row to the rotation audit log
func (r *Repository) SaveRotationEvent(ctx context.Context, from, to, reason string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO rotation_history (from_strategy, to_strategy, reason, rotated_at)
		VALUES ($1, $2, $3, $4)
	`, nullable(from), to, reason, at)
	if err != nil {
		return fmt.Errorf("failed to save rotation event: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
