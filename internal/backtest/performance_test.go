package backtest

import (
	"math"
	"testing"
)

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"monotonic rise", []float64{100, 105, 110, 120}, 0},
		{"flat", []float64{100, 100, 100}, 0},
		{"single dip", []float64{100, 120, 90}, -25},
		{"recovers after dip", []float64{100, 120, 90, 130}, -25},
		{"deeper second dip", []float64{100, 110, 99, 120, 60}, -50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxDrawdown(tt.equity)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MaxDrawdown(%v) = %v, want %v", tt.equity, got, tt.want)
			}
		})
	}
}

func TestSharpeRatioRequiresTwoReturns(t *testing.T) {
	if got := sharpeRatio(nil, DefaultAnnualizationFactor); got != 0 {
		t.Errorf("sharpe of empty series = %v, want 0", got)
	}
	if got := sharpeRatio([]float64{0.01}, DefaultAnnualizationFactor); got != 0 {
		t.Errorf("sharpe of single return = %v, want 0", got)
	}
}

func TestSharpeRatioZeroVariance(t *testing.T) {
	if got := sharpeRatio([]float64{0.01, 0.01, 0.01}, DefaultAnnualizationFactor); got != 0 {
		t.Errorf("sharpe with zero variance = %v, want 0", got)
	}
}

func TestSharpeRatioSign(t *testing.T) {
	up := sharpeRatio([]float64{0.01, 0.02, 0.015, 0.03}, DefaultAnnualizationFactor)
	if up <= 0 {
		t.Errorf("sharpe of positive returns = %v, want > 0", up)
	}
	down := sharpeRatio([]float64{-0.01, -0.02, -0.015, -0.03}, DefaultAnnualizationFactor)
	if down >= 0 {
		t.Errorf("sharpe of negative returns = %v, want < 0", down)
	}
}

func TestScoreTotalReturnAndWinRate(t *testing.T) {
	equity := []float64{10000, 10200, 10500}
	trades := []Trade{
		{ProfitLoss: 200},
		{ProfitLoss: 300},
		{ProfitLoss: -100},
	}

	m := Score(equity, trades)
	if math.Abs(m.TotalReturnPct-5) > 1e-9 {
		t.Errorf("total return = %v, want 5", m.TotalReturnPct)
	}
	if m.TradesCount != 3 {
		t.Errorf("trades count = %d, want 3", m.TradesCount)
	}
	if math.Abs(m.WinRatePct-100*2.0/3.0) > 1e-9 {
		t.Errorf("win rate = %v, want %v", m.WinRatePct, 100*2.0/3.0)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	m := Score(nil, nil)
	if m.TotalReturnPct != 0 || m.SharpeRatio != 0 || m.MaxDrawdownPct != 0 || m.WinRatePct != 0 || m.TradesCount != 0 {
		t.Errorf("score of empty inputs = %+v, want all zero", m)
	}
}

func TestPeriodReturns(t *testing.T) {
	got := periodReturns([]float64{100, 110, 99})
	want := []float64{0.1, -0.1}
	if len(got) != len(want) {
		t.Fatalf("got %d returns, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("return[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
