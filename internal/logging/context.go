package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// BacktestContext creates a logger context for backtest runs
func BacktestContext(strategyID, symbol string, startDate, endDate time.Time) *Logger {
	return Default().WithFields(map[string]interface{}{
		"strategy_id": strategyID,
		"symbol":      symbol,
		"start_date":  startDate.Format("2006-01-02"),
		"end_date":    endDate.Format("2006-01-02"),
	}).WithComponent("backtest")
}

// EvolutionContext creates a logger context for genetic algorithm runs
func EvolutionContext(runID string, generation int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"run_id":     runID,
		"generation": generation,
	}).WithComponent("evolution")
}

// RotationContext creates a logger context for strategy rotation
func RotationContext(fromID, toID, reason string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"from":   fromID,
		"to":     toID,
		"reason": reason,
	}).WithComponent("rotation")
}

// MarketContext creates a logger context for market data operations
func MarketContext(symbol, assetClass, interval string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":      symbol,
		"asset_class": assetClass,
		"interval":    interval,
	}).WithComponent("market")
}
