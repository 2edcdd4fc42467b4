package backtest

import "math"

// DefaultAnnualizationFactor assumes daily bars
const DefaultAnnualizationFactor = 252

// Score computes a performance report from an equity curve and trade log.
// It is a pure function; Monte Carlo fields are attached by the caller.
func Score(equityCurve []float64, trades []Trade) PerformanceMetrics {
	return ScoreAnnualized(equityCurve, trades, DefaultAnnualizationFactor)
}

// ScoreAnnualized is Score with an explicit annualization factor
func ScoreAnnualized(equityCurve []float64, trades []Trade, annualization float64) PerformanceMetrics {
	m := PerformanceMetrics{TradesCount: len(trades)}

	if len(equityCurve) > 0 && equityCurve[0] != 0 {
		final := equityCurve[len(equityCurve)-1]
		m.TotalReturnPct = (final/equityCurve[0] - 1) * 100
	}

	returns := periodReturns(equityCurve)
	m.SharpeRatio = sharpeRatio(returns, annualization)
	m.SortinoRatio = sortinoRatio(returns, annualization)
	m.MaxDrawdownPct = MaxDrawdown(equityCurve)

	wins := 0
	for _, t := range trades {
		if t.ProfitLoss > 0 {
			wins++
		}
	}
	if len(trades) > 0 {
		m.WinRatePct = float64(wins) / float64(len(trades)) * 100
	}

	return m
}

// MaxDrawdown returns the deepest peak-to-trough decline as a percentage
// of the running maximum. 0 for a monotonically non-decreasing curve.
func MaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equityCurve[0]
	for _, v := range equityCurve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak * 100
			if dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}

// periodReturns converts an equity curve to per-period simple returns
func periodReturns(equityCurve []float64) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		if equityCurve[i-1] == 0 {
			continue
		}
		returns = append(returns, (equityCurve[i]-equityCurve[i-1])/equityCurve[i-1])
	}
	return returns
}

// sharpeRatio is mean/std of period returns scaled by sqrt(annualization).
// Reported as 0 with fewer than 2 observations or zero variance.
func sharpeRatio(returns []float64, annualization float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(annualization)
}

// sortinoRatio penalizes downside deviation only
func sortinoRatio(returns []float64, annualization float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, _ := meanStd(returns)

	var downsideSq float64
	downside := 0
	for _, r := range returns {
		if r < 0 {
			downsideSq += r * r
			downside++
		}
	}
	if downside == 0 {
		return 0
	}
	downsideStd := math.Sqrt(downsideSq / float64(len(returns)))
	if downsideStd == 0 {
		return 0
	}
	return mean / downsideStd * math.Sqrt(annualization)
}

func meanStd(values []float64) (mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
