package market

import (
	"context"

	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/observ"
)

// QuoteCache is the slice of the repository the fallback chain needs:
// write-through on live quotes, read on total feed failure.
type QuoteCache interface {
	SaveQuote(ctx context.Context, q *domain.QuoteRecord) error
	LastQuote(ctx context.Context, ticker string) (*domain.QuoteRecord, error)
}

// FallbackFeed resolves quotes primary -> secondary -> last cached.
// Live quotes are written through to the cache so later failures can
// still price held positions. A ticker unresolved by all three links
// yields an unpriced error, which is fatal for the requesting cycle.
type FallbackFeed struct {
	primary   Feed
	secondary Feed // optional
	cache     QuoteCache
}

func NewFallbackFeed(primary, secondary Feed, cache QuoteCache) *FallbackFeed {
	return &FallbackFeed{primary: primary, secondary: secondary, cache: cache}
}

func (f *FallbackFeed) GetQuotes(ctx context.Context, tickers []string) (map[string]Quote, error) {
	out := map[string]Quote{}
	missing := tickers

	missing = f.fetchInto(ctx, f.primary, missing, out, "primary")
	if len(missing) > 0 && f.secondary != nil {
		missing = f.fetchInto(ctx, f.secondary, missing, out, "secondary")
	}

	for _, t := range missing {
		rec, err := f.cache.LastQuote(ctx, t)
		if err != nil {
			return nil, NewUnpricedError(t)
		}
		observ.IncCounter("market_cache_fallback_total", map[string]string{"ticker": t})
		out[t] = Quote{
			Ticker:    rec.Ticker,
			Price:     rec.Price,
			Change:    rec.Change,
			ChangePct: rec.ChangePct,
			Volume:    rec.Volume,
			Timestamp: rec.UpdatedAt,
			Source:    "cache",
		}
	}
	return out, nil
}

func (f *FallbackFeed) fetchInto(ctx context.Context, feed Feed, tickers []string, out map[string]Quote, label string) (missing []string) {
	quotes, err := feed.GetQuotes(ctx, tickers)
	if err != nil {
		observ.Log("market_feed_error", map[string]any{"feed": label, "err": err.Error()})
		return tickers
	}
	for _, t := range tickers {
		q, ok := quotes[t]
		if !ok {
			missing = append(missing, t)
			continue
		}
		if err := ValidateQuote(&q); err != nil {
			observ.Log("market_quote_invalid", map[string]any{"feed": label, "ticker": t, "err": err.Error()})
			missing = append(missing, t)
			continue
		}
		out[t] = q
		// write-through so the cache link stays fresh
		_ = f.cache.SaveQuote(ctx, &domain.QuoteRecord{
			Ticker:    q.Ticker,
			Price:     q.Price,
			Change:    q.Change,
			ChangePct: q.ChangePct,
			Volume:    q.Volume,
		})
	}
	return missing
}

// GetHistory delegates to the primary feed; history is enrichment only,
// so a secondary/cache fallback is not attempted.
func (f *FallbackFeed) GetHistory(ctx context.Context, ticker string, days int) ([]Candle, error) {
	return f.primary.GetHistory(ctx, ticker, days)
}
