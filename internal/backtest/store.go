package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evo-trading-bot/internal/logging"
)

// DefaultMaxStoredTrades caps the trade log persisted per run
const DefaultMaxStoredTrades = 100

// ResultStore persists one JSON document per backtest run. The path is
// deterministic in the run's identity, so re-running the same strategy
// over the same window overwrites the previous document.
type ResultStore struct {
	dir       string
	maxTrades int
	logger    *logging.Logger
}

// NewResultStore creates a store rooted at dir
func NewResultStore(dir string, maxTrades int, logger *logging.Logger) *ResultStore {
	if maxTrades <= 0 {
		maxTrades = DefaultMaxStoredTrades
	}
	return &ResultStore{
		dir:       dir,
		maxTrades: maxTrades,
		logger:    logger.WithComponent("backtest.store"),
	}
}

// Path returns the document location for a result
func (s *ResultStore) Path(res Result) string {
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		sanitize(res.StrategyID),
		sanitize(res.Symbol),
		res.StartDate.Format("20060102"),
		res.EndDate.Format("20060102"),
	)
	return filepath.Join(s.dir, string(res.AssetClass), name)
}

// Save writes the result document, truncating the trade log to the cap
func (s *ResultStore) Save(res Result) error {
	if len(res.Trades) > s.maxTrades {
		res.Trades = res.Trades[:s.maxTrades]
	}

	path := s.Path(res)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", res.RunID, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing result %s: %w", res.RunID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing result %s: %w", res.RunID, err)
	}

	s.logger.Debug("Stored backtest result at %s", path)
	return nil
}

// Load reads a previously stored document
func (s *ResultStore) Load(path string) (Result, error) {
	var res Result
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("reading result document: %w", err)
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decoding result document %s: %w", path, err)
	}
	return res, nil
}

// List returns the stored document paths for an asset class
func (s *ResultStore) List(class string) ([]string, error) {
	pattern := filepath.Join(s.dir, class, "*.json")
	return filepath.Glob(pattern)
}

func sanitize(s string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_", ":", "-")
	return replacer.Replace(strings.ToLower(s))
}

// StoredResultsEngine decorates an Engine so every run is persisted.
// Storage failures are logged, never surfaced; the result is still good.
type StoredResultsEngine struct {
	inner  Engine
	store  *ResultStore
	logger *logging.Logger
}

// NewStoredResultsEngine wraps inner with persistence
func NewStoredResultsEngine(inner Engine, store *ResultStore, logger *logging.Logger) *StoredResultsEngine {
	return &StoredResultsEngine{
		inner:  inner,
		store:  store,
		logger: logger.WithComponent("backtest.store"),
	}
}

// RunBacktest implements Engine
func (e *StoredResultsEngine) RunBacktest(ctx context.Context, req Request) Result {
	res := e.inner.RunBacktest(ctx, req)
	if err := e.store.Save(res); err != nil {
		e.logger.WithError(err).Warn("Failed to persist backtest result %s", res.RunID)
	}
	return res
}
