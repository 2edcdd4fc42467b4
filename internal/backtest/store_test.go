package backtest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/strategy"
)

func sampleResult() Result {
	req := baseRequest()
	trades := []Trade{{Side: "LONG", Quantity: 10, ProfitLoss: 50}}
	return successResult(req, PerformanceMetrics{TotalReturnPct: 5, TradesCount: 1}, trades)
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewResultStore(t.TempDir(), 0, testLogger())
	res := sampleResult()

	if err := store.Save(res); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(store.Path(res))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.RunID != res.RunID {
		t.Errorf("run id = %s, want %s", loaded.RunID, res.RunID)
	}
	if loaded.Metrics.TotalReturnPct != 5 {
		t.Errorf("total return = %v, want 5", loaded.Metrics.TotalReturnPct)
	}
	if len(loaded.Trades) != 1 {
		t.Errorf("trades = %d, want 1", len(loaded.Trades))
	}
}

func TestStorePathDeterministic(t *testing.T) {
	store := NewResultStore("data/backtests", 0, testLogger())
	res := sampleResult()

	p1 := store.Path(res)
	res.RunID = "different-run"
	p2 := store.Path(res)
	if p1 != p2 {
		t.Errorf("path should not depend on run id: %s vs %s", p1, p2)
	}

	want := filepath.Join("data/backtests", "equity", "strat-1_aapl_20240101_20240301.json")
	if p1 != want {
		t.Errorf("path = %s, want %s", p1, want)
	}
}

func TestStoreTruncatesTrades(t *testing.T) {
	store := NewResultStore(t.TempDir(), 5, testLogger())
	res := sampleResult()
	res.Trades = make([]Trade, 20)
	for i := range res.Trades {
		res.Trades[i] = Trade{Side: "LONG", Quantity: float64(i)}
	}

	if err := store.Save(res); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load(store.Path(res))
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Trades) != 5 {
		t.Errorf("stored trades = %d, want capped at 5", len(loaded.Trades))
	}
}

func TestStoreList(t *testing.T) {
	store := NewResultStore(t.TempDir(), 0, testLogger())
	res := sampleResult()
	if err := store.Save(res); err != nil {
		t.Fatal(err)
	}

	paths, err := store.List("equity")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("listed %d documents, want 1", len(paths))
	}
	if !strings.HasSuffix(paths[0], ".json") {
		t.Errorf("unexpected document path %s", paths[0])
	}
}

func TestStoredResultsEnginePersists(t *testing.T) {
	bars := make([]market.Bar, 40)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = market.Bar{OpenTime: t0.Add(time.Duration(i) * time.Hour), Close: 100 + float64(i)}
	}

	store := NewResultStore(t.TempDir(), 0, testLogger())
	inner := NewEquityEngine(&fakeFetcher{bars: bars}, NewBootstrapSimulator(10), testLogger())
	engine := NewStoredResultsEngine(inner, store, testLogger())

	req := baseRequest()
	req.Factory = scriptedFactory([]strategy.Signal{strategy.SignalBuy})

	res := engine.RunBacktest(context.Background(), req)
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s), want success", res.Status, res.Error)
	}

	if _, err := store.Load(store.Path(res)); err != nil {
		t.Fatalf("result should have been persisted: %v", err)
	}
}
