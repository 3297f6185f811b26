// Package risk validates a proposed decision against an agent's
// watchlist, cash/leverage limits and ownership constraints. Pure: the
// caller supplies the current price and valuation, and rules are applied
// in order with the first failure winning.
package risk

import (
	"fmt"

	"github.com/tradearena/agent-arena/internal/domain"
)

// Input is everything a validation needs; no I/O happens here.
type Input struct {
	Agent       domain.Agent
	Ledger      domain.Ledger
	Positions   []domain.Position
	Decision    domain.Decision
	Price       float64 // current price for the decision's ticker
	TotalValue  float64 // current total valuation (cash + positions)
	TradesToday int     // filled trades for this agent today
}

// Verdict is the validation result. Rule names the first violated check
// for metrics and feedback prompts.
type Verdict struct {
	Accepted bool
	Rule     string
	Reason   string
}

func accepted() Verdict { return Verdict{Accepted: true} }

func rejected(rule, format string, args ...any) Verdict {
	return Verdict{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Validate applies the rule list in order, first failure wins.
func Validate(in Input) Verdict {
	d := in.Decision

	if d.Action == domain.ActionHold {
		return accepted()
	}
	if d.Ticker == "" {
		return rejected("ticker_required", "%s without a ticker", d.Action)
	}
	if !in.Agent.InWatchlist(d.Ticker) {
		return rejected("watchlist", "%s is not in your watchlist", d.Ticker)
	}
	if d.Shares <= 0 {
		return rejected("shares_positive", "requested shares must be > 0, got %d", d.Shares)
	}

	switch d.Action {
	case domain.ActionBuy:
		return validateBuy(in)
	case domain.ActionSell:
		return validateSell(in)
	}
	return rejected("action", "unknown action %q", d.Action)
}

func validateBuy(in Input) Verdict {
	d := in.Decision
	lev := d.Leverage
	if lev == 0 {
		lev = 1
	}
	if !in.Agent.AllowsLeverage(lev) {
		return rejected("leverage_tier", "leverage %dx not in allowed tiers %v", lev, in.Agent.LeverageTiers)
	}

	notional := d.Notional(in.Price)
	cashFloor := -float64(lev-1) * in.Ledger.InitialCapital
	if in.Ledger.CashBalance-notional < cashFloor {
		return rejected("cash_floor", "buying %d @ %.2f would drop cash to %.2f, below the %.2f floor at %dx leverage",
			d.Shares, in.Price, in.Ledger.CashBalance-notional, cashFloor, lev)
	}

	if in.TotalValue > 0 && notional/in.TotalValue > in.Agent.MaxPositionPct {
		return rejected("position_size", "trade notional %.2f is %.1f%% of portfolio value %.2f, cap is %.0f%%",
			notional, notional/in.TotalValue*100, in.TotalValue, in.Agent.MaxPositionPct*100)
	}

	if in.Agent.MaxTradesPerDay > 0 && in.TradesToday >= in.Agent.MaxTradesPerDay {
		return rejected("trade_limit", "daily trade limit %d reached", in.Agent.MaxTradesPerDay)
	}
	return accepted()
}

func validateSell(in Input) Verdict {
	d := in.Decision
	for _, p := range in.Positions {
		if p.Ticker != d.Ticker {
			continue
		}
		if p.Shares < d.Shares {
			return rejected("ownership", "you hold %d shares of %s, cannot sell %d", p.Shares, d.Ticker, d.Shares)
		}
		if in.Agent.MaxTradesPerDay > 0 && in.TradesToday >= in.Agent.MaxTradesPerDay {
			return rejected("trade_limit", "daily trade limit %d reached", in.Agent.MaxTradesPerDay)
		}
		return accepted()
	}
	return rejected("ownership", "no position in %s", d.Ticker)
}
