// Package exec submits validated decisions to the broker gateway and,
// on a confirmed fill, applies the effect to the ledger. The ledger is
// never touched speculatively: a PENDING trade row exists before
// submission, and only a COMPLETE fill flips it to FILLED together with
// the cash/position change in one transaction.
package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/tradearena/agent-arena/internal/broker"
	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/observ"
	"github.com/tradearena/agent-arena/internal/portfolio"
	"github.com/tradearena/agent-arena/internal/repo"
)

type Executor struct {
	gateway broker.Gateway
	store   repo.Repository
}

func New(gateway broker.Gateway, store repo.Repository) *Executor {
	return &Executor{gateway: gateway, store: store}
}

// Request is one validated non-HOLD decision ready for submission.
type Request struct {
	RunID     string
	Agent     domain.Agent
	Ledger    domain.Ledger // copy; mutated locally, persisted on fill
	Positions []domain.Position
	Decision  domain.Decision
	Price     float64   // cycle snapshot price for the ticker
	SimTime   time.Time // trade rows carry the run's simulated clock
}

// Execute returns the terminal trade row. A gateway transport error is
// returned alongside the REJECTED trade so the cycle can log it; the
// ledger is left untouched in every non-FILLED outcome.
func (x *Executor) Execute(ctx context.Context, req Request) (*domain.Trade, error) {
	d := req.Decision
	trade := &domain.Trade{
		RunID:      req.RunID,
		AgentID:    req.Agent.ID,
		Ticker:     d.Ticker,
		Side:       d.Action,
		Shares:     d.Shares,
		Leverage:   d.Leverage,
		Status:     domain.TradePending,
		CashBefore: req.Ledger.CashBalance,
		CreatedAt:  req.SimTime,
		UpdatedAt:  req.SimTime,
	}
	if err := x.store.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("create pending trade: %w", err)
	}

	result, err := x.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Ticker:   d.Ticker,
		Side:     d.Action,
		Shares:   d.Shares,
		RefPrice: req.Price,
	})
	if err != nil {
		trade.Status = domain.TradeRejected
		trade.Reason = err.Error()
		if uerr := x.store.UpdateTrade(ctx, trade); uerr != nil {
			return trade, fmt.Errorf("mark trade rejected: %w", uerr)
		}
		observ.IncCounter("trades_rejected_total", map[string]string{"agent": req.Agent.Name})
		return trade, err
	}

	trade.OrderID = result.OrderID
	if result.Status != broker.StatusComplete {
		trade.Status = domain.TradeRejected
		trade.Reason = result.Reason
		if uerr := x.store.UpdateTrade(ctx, trade); uerr != nil {
			return trade, fmt.Errorf("mark trade rejected: %w", uerr)
		}
		observ.IncCounter("trades_rejected_total", map[string]string{"agent": req.Agent.Name})
		return trade, nil
	}

	// Confirmed fill: compute the ledger effect and commit it atomically
	// with the trade's terminal state.
	ledger := req.Ledger
	var pos domain.Position
	deletePos := false
	switch d.Action {
	case domain.ActionBuy:
		pos = portfolio.ApplyBuy(&ledger, req.Positions, d.Ticker, d.Shares, result.FillPrice)
	case domain.ActionSell:
		pos, deletePos = portfolio.ApplySell(&ledger, req.Positions, d.Ticker, d.Shares, result.FillPrice)
		if pos.Ticker == "" {
			trade.Status = domain.TradeRejected
			trade.Reason = "no position to sell"
			if uerr := x.store.UpdateTrade(ctx, trade); uerr != nil {
				return trade, fmt.Errorf("mark trade rejected: %w", uerr)
			}
			return trade, nil
		}
	}

	trade.Status = domain.TradeFilled
	trade.FillPrice = result.FillPrice
	trade.TotalValue = float64(d.Shares) * result.FillPrice
	trade.CashAfter = ledger.CashBalance

	if err := x.store.ApplyFill(ctx, repo.FillApply{
		Trade:          trade,
		Ledger:         &ledger,
		Position:       &pos,
		DeletePosition: deletePos,
	}); err != nil {
		return trade, fmt.Errorf("apply fill: %w", err)
	}
	observ.IncCounter("trades_filled_total", map[string]string{"agent": req.Agent.Name, "side": string(d.Action)})
	return trade, nil
}
