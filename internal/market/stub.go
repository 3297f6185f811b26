package market

import (
	"context"
	"sync"
	"time"
)

// StubFeed returns deterministic quotes for backtests and tests.
type StubFeed struct {
	mu      sync.RWMutex
	quotes  map[string]Quote
	history map[string][]Candle
	fail    bool
}

func NewStubFeed() *StubFeed {
	return &StubFeed{
		quotes:  map[string]Quote{},
		history: map[string][]Candle{},
	}
}

// SetPrice sets the current price for a ticker.
func (s *StubFeed) SetPrice(ticker string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.quotes[ticker]
	q := Quote{Ticker: ticker, Price: price, Volume: 1000000, Timestamp: time.Now().UTC(), Source: "stub"}
	if ok && prev.Price > 0 {
		q.Change = price - prev.Price
		q.ChangePct = q.Change / prev.Price * 100
	}
	s.quotes[ticker] = q
}

// SetHistory sets the candle series for a ticker.
func (s *StubFeed) SetHistory(ticker string, candles []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[ticker] = candles
}

// Fail makes every subsequent call return a network error,
// simulating a feed outage.
func (s *StubFeed) Fail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *StubFeed) GetQuotes(_ context.Context, tickers []string) (map[string]Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail {
		return nil, NewNetworkError("", "stub feed down", nil)
	}
	out := map[string]Quote{}
	for _, t := range tickers {
		if q, ok := s.quotes[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}

func (s *StubFeed) GetHistory(_ context.Context, ticker string, days int) ([]Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail {
		return nil, NewNetworkError(ticker, "stub feed down", nil)
	}
	h := s.history[ticker]
	if days > 0 && len(h) > days {
		h = h[len(h)-days:]
	}
	out := make([]Candle, len(h))
	copy(out, h)
	return out, nil
}
