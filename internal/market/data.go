// Package market defines the historical market data model and the fetch
// boundary the backtesting pipeline consumes.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrNoData is returned when a fetch yields no bars for the requested range
var ErrNoData = errors.New("no historical data available")

// AssetClass tags which simulator family handles a symbol
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
)

// Bar is a single OHLCV candle
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// FetchRequest describes one historical data query
type FetchRequest struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	Interval   string     `json:"interval"` // e.g. "1h", "1d"
}

// Fetcher is the external historical-data collaborator. Implementations
// may return ErrNoData (or an empty slice) to signal an empty range.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Bar, error)
}

// Closes extracts the close series from a bar slice
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
