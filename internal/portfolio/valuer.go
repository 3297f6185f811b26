package portfolio

import (
	"context"

	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/market"
)

// Valuation is a point-in-time mark of a ledger.
type Valuation struct {
	Cash           float64
	PositionsValue float64
	TotalValue     float64
	ReturnPct      float64
}

// PriceStore is the repository slice the valuer needs for last-known
// persisted prices.
type PriceStore interface {
	LastQuote(ctx context.Context, ticker string) (*domain.QuoteRecord, error)
}

// Valuer resolves prices cycle cache -> live feed -> last persisted
// quote. Feed and store are optional links; a ticker unresolved by every
// configured link is an unpriced error.
type Valuer struct {
	cache map[string]market.Quote
	feed  market.Feed
	store PriceStore
}

func NewValuer(cache map[string]market.Quote, feed market.Feed, store PriceStore) *Valuer {
	return &Valuer{cache: cache, feed: feed, store: store}
}

// Price resolves one ticker through the chain.
func (v *Valuer) Price(ctx context.Context, ticker string) (float64, error) {
	if q, ok := v.cache[ticker]; ok && q.Price > 0 {
		return q.Price, nil
	}
	if v.feed != nil {
		if quotes, err := v.feed.GetQuotes(ctx, []string{ticker}); err == nil {
			if q, ok := quotes[ticker]; ok && q.Price > 0 {
				return q.Price, nil
			}
		}
	}
	if v.store != nil {
		if rec, err := v.store.LastQuote(ctx, ticker); err == nil && rec.Price > 0 {
			return rec.Price, nil
		}
	}
	return 0, market.NewUnpricedError(ticker)
}

// Value marks the ledger: totalValue = cash + sum(shares x price).
func (v *Valuer) Value(ctx context.Context, l domain.Ledger, positions []domain.Position) (Valuation, error) {
	posValue := 0.0
	for _, p := range positions {
		price, err := v.Price(ctx, p.Ticker)
		if err != nil {
			return Valuation{}, err
		}
		posValue += float64(p.Shares) * price
	}
	total := l.CashBalance + posValue
	return Valuation{
		Cash:           l.CashBalance,
		PositionsValue: posValue,
		TotalValue:     total,
		ReturnPct:      ReturnPct(total, l.InitialCapital),
	}, nil
}

// ReturnPct is the percentage gain over initial capital.
func ReturnPct(total, initial float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (total - initial) / initial * 100
}
