package backtest

import (
	"math"
	"testing"
)

func TestBuyPrice(t *testing.T) {
	// 100 * 1.01 * 1.001: slippage first, then commission on the
	// slipped price
	got := BuyPrice(100, 0.01, 0.001)
	if math.Abs(got-101.101) > 1e-9 {
		t.Errorf("BuyPrice(100, 0.01, 0.001) = %v, want 101.101", got)
	}
}

func TestSellPrice(t *testing.T) {
	got := SellPrice(100, 0.01, 0.001)
	if math.Abs(got-98.901) > 1e-9 {
		t.Errorf("SellPrice(100, 0.01, 0.001) = %v, want 98.901", got)
	}
}

func TestExecutionPricesBracketRawPrice(t *testing.T) {
	buy := BuyPrice(50, 0.002, 0.001)
	sell := SellPrice(50, 0.002, 0.001)
	if buy <= 50 {
		t.Errorf("buy fill %v should exceed raw price", buy)
	}
	if sell >= 50 {
		t.Errorf("sell fill %v should be below raw price", sell)
	}
}

func TestZeroCostsAreIdentity(t *testing.T) {
	if got := BuyPrice(123.45, 0, 0); got != 123.45 {
		t.Errorf("BuyPrice with zero costs = %v, want 123.45", got)
	}
	if got := SellPrice(123.45, 0, 0); got != 123.45 {
		t.Errorf("SellPrice with zero costs = %v, want 123.45", got)
	}
}
