// Package portfolio holds the ledger math: cash/position mutation on
// fills and valuation through the price resolution chain. Mutations are
// computed here and persisted atomically by the executor.
package portfolio

import (
	"github.com/tradearena/agent-arena/internal/domain"
)

// ApplyBuy decrements cash and folds the fill into the ticker position
// at weighted-average cost. Returns the resulting position row.
func ApplyBuy(l *domain.Ledger, positions []domain.Position, ticker string, shares int, price float64) domain.Position {
	l.CashBalance -= float64(shares) * price

	for _, p := range positions {
		if p.Ticker != ticker {
			continue
		}
		totalCost := float64(p.Shares)*p.AvgCost + float64(shares)*price
		p.Shares += shares
		p.AvgCost = totalCost / float64(p.Shares)
		return p
	}
	return domain.Position{
		LedgerID: l.ID,
		Ticker:   ticker,
		Shares:   shares,
		AvgCost:  price,
	}
}

// ApplySell increments cash and reduces the position. Average cost is
// unchanged on a partial sale. closed reports the position went to zero
// and should be deleted.
func ApplySell(l *domain.Ledger, positions []domain.Position, ticker string, shares int, price float64) (pos domain.Position, closed bool) {
	l.CashBalance += float64(shares) * price

	for _, p := range positions {
		if p.Ticker != ticker {
			continue
		}
		p.Shares -= shares
		return p, p.Shares == 0
	}
	// Validator guarantees ownership; reaching here is a programming error
	// upstream, surfaced as an empty position for the caller to reject.
	return domain.Position{}, false
}
