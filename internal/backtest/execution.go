package backtest

// Execution-price model shared by every asset class. Slippage is applied
// before commission; the ordering is part of the contract.

// BuyPrice returns the effective fill price for a buy
func BuyPrice(price, slippagePct, commissionPct float64) float64 {
	return price * (1 + slippagePct) * (1 + commissionPct)
}

// SellPrice returns the effective fill price for a sell
func SellPrice(price, slippagePct, commissionPct float64) float64 {
	return price * (1 - slippagePct) * (1 - commissionPct)
}
