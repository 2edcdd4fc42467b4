package backtest

import (
	"context"
	"testing"
)

func TestSimulateInsufficientReturns(t *testing.T) {
	sim := NewBootstrapSimulator(100)
	res, err := sim.Simulate(context.Background(), []float64{0.01, 0.02}, 10000)
	if err != nil {
		t.Fatalf("insufficient data should degrade, not fail: %v", err)
	}
	if res.Status != "error" {
		t.Errorf("status = %s, want error", res.Status)
	}
	if res.Error == "" {
		t.Error("degraded result should explain itself")
	}
}

func TestSimulateAllPositiveReturns(t *testing.T) {
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = 0.01
	}

	sim := NewBootstrapSimulator(200)
	sim.Seed = 7
	res, err := sim.Simulate(context.Background(), returns, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "success" {
		t.Fatalf("status = %s (%s), want success", res.Status, res.Error)
	}
	if res.ConsistencyScore != 1 {
		t.Errorf("consistency = %v, want 1 when every path gains", res.ConsistencyScore)
	}
	if res.FinalEquityP5 <= 10000 {
		t.Errorf("p5 final equity = %v, want above starting capital", res.FinalEquityP5)
	}
	if res.DrawdownP95 != 0 {
		t.Errorf("drawdown tail = %v, want 0 with only gains", res.DrawdownP95)
	}
}

func TestSimulateMixedReturns(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.03, -0.02, 0.01, -0.015, 0.025, -0.005, 0.01, -0.01, 0.02, -0.03}

	sim := NewBootstrapSimulator(500)
	sim.Seed = 99
	res, err := sim.Simulate(context.Background(), returns, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if res.ConsistencyScore <= 0 || res.ConsistencyScore >= 1 {
		t.Errorf("consistency = %v, want strictly between 0 and 1 for mixed returns", res.ConsistencyScore)
	}
	if res.FinalEquityP5 >= res.FinalEquityP95 {
		t.Errorf("p5 %v should be below p95 %v", res.FinalEquityP5, res.FinalEquityP95)
	}
	if res.DrawdownP95 >= 0 {
		t.Errorf("drawdown tail = %v, want negative", res.DrawdownP95)
	}
}

func TestSimulateCancelled(t *testing.T) {
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = 0.01
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := NewBootstrapSimulator(100000)
	sim.Workers = 1
	_, err := sim.Simulate(ctx, returns, 10000)
	if err == nil {
		t.Fatal("cancelled context should surface an error")
	}
}
