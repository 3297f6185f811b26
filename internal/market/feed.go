// Package market defines the market-data contract and the price
// resolution chain used by the cycle engine. Quotes come from a Feed;
// when a feed fails the FallbackFeed walks primary -> secondary -> last
// cached quote before giving up.
package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Quote is a normalized current price for one ticker.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "rest"|"stub"|"cache"
}

// Candle is one day of OHLCV history used for indicator enrichment.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Feed supplies quotes and optional history for a set of tickers.
type Feed interface {
	GetQuotes(ctx context.Context, tickers []string) (map[string]Quote, error)
	GetHistory(ctx context.Context, ticker string, days int) ([]Candle, error)
}

// ValidateQuote normalizes and rejects malformed quotes (fail-closed).
func ValidateQuote(q *Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	q.Ticker = strings.ToUpper(strings.TrimSpace(q.Ticker))
	if q.Ticker == "" {
		return fmt.Errorf("empty ticker")
	}
	if q.Price <= 0 {
		return fmt.Errorf("invalid price for %s: %.4f", q.Ticker, q.Price)
	}
	if q.Volume < 0 {
		return fmt.Errorf("negative volume for %s: %d", q.Ticker, q.Volume)
	}
	if q.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("quote timestamp too far in future: %v", q.Timestamp)
	}
	return nil
}

// FeedError classifies market data failures so callers can decide
// whether to fall through the resolution chain.
type FeedError struct {
	Type    string // "network", "provider_error", "bad_ticker", "unpriced"
	Ticker  string
	Message string
	Cause   error
}

func (e *FeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Type, e.Ticker, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Ticker, e.Message)
}

func (e *FeedError) Unwrap() error { return e.Cause }

func NewNetworkError(ticker, message string, cause error) *FeedError {
	return &FeedError{Type: "network", Ticker: ticker, Message: message, Cause: cause}
}

func NewProviderError(ticker, message string, cause error) *FeedError {
	return &FeedError{Type: "provider_error", Ticker: ticker, Message: message, Cause: cause}
}

// NewUnpricedError marks a ticker that no link of the resolution chain
// could price; fatal for the cycle that needs it.
func NewUnpricedError(ticker string) *FeedError {
	return &FeedError{Type: "unpriced", Ticker: ticker, Message: "no quote from feed, fallback or cache"}
}
