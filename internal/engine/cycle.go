// Package engine drives the per-tick pipeline and the multi-day run
// state machine. Agents in one cycle share a single market snapshot and
// are processed sequentially in creation order, so backtests with stubbed
// collaborators are reproducible.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradearena/agent-arena/internal/decision"
	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/events"
	"github.com/tradearena/agent-arena/internal/exec"
	"github.com/tradearena/agent-arena/internal/market"
	"github.com/tradearena/agent-arena/internal/observ"
	"github.com/tradearena/agent-arena/internal/portfolio"
	"github.com/tradearena/agent-arena/internal/repo"
	"github.com/tradearena/agent-arena/internal/risk"
)

// Per-agent pipeline states. Bounded at maxAttempts trips through the
// AwaitDecision -> Validate loop before a forced HOLD.
type agentState int

const (
	stateAwaitDecision agentState = iota
	stateValidate
	stateExecute
	stateForceHold
	stateSettle
)

// Cycle runs one tick across all active agents.
type Cycle struct {
	engine      *decision.Engine
	executor    *exec.Executor
	store       repo.Repository
	feed        market.Feed
	sink        events.Sink
	maxAttempts int
	historyDays int
}

func NewCycle(eng *decision.Engine, ex *exec.Executor, store repo.Repository, feed market.Feed, sink events.Sink, maxAttempts, historyDays int) *Cycle {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Cycle{
		engine:      eng,
		executor:    ex,
		store:       store,
		feed:        feed,
		sink:        sink,
		maxAttempts: maxAttempts,
		historyDays: historyDays,
	}
}

// Result summarizes one cycle: the post-settle valuation per agent and
// the number of fills.
type Result struct {
	Valuations map[string]portfolio.Valuation // agentID -> valuation
	Fills      int
}

// Run executes one tick. The market snapshot is fetched once and shared
// by every agent. A returned error is fatal: the cycle could not price
// trades. Individual agent failures are logged and skipped.
func (c *Cycle) Run(ctx context.Context, run *domain.Run, agents []domain.Agent, simTime time.Time, tradesToday map[string]int) (Result, error) {
	res := Result{Valuations: map[string]portfolio.Valuation{}}

	tickers := watchlistUnion(agents)
	quotes, err := c.feed.GetQuotes(ctx, tickers)
	if err != nil {
		return res, fmt.Errorf("cycle market fetch: %w", err)
	}

	ms := decision.MarketState{
		Quotes:  quotes,
		History: c.fetchHistory(ctx, tickers),
		SimTime: simTime,
	}

	c.sink.Publish(events.TypeCycleStarted, map[string]any{
		"run_id": run.ID, "at": simTime, "agents": len(agents),
	})

	for _, agent := range agents {
		fills, err := c.processAgent(ctx, run, agent, ms, tradesToday, res.Valuations)
		res.Fills += fills
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if isUnpriced(err) {
			// Cannot price this cycle at all; surface to the run.
			return res, err
		}
		observ.Log("cycle_agent_error", map[string]any{
			"agent": agent.Name, "err": err.Error(),
		})
		c.sink.Publish(events.TypeError, map[string]any{
			"run_id": run.ID, "agent": agent.Name, "error": err.Error(),
		})
	}
	return res, nil
}

// processAgent walks the state machine for one agent and always writes
// the valuation snapshot at the end, pipeline failure or not.
func (c *Cycle) processAgent(ctx context.Context, run *domain.Run, agent domain.Agent, ms decision.MarketState, tradesToday map[string]int, valuations map[string]portfolio.Valuation) (fills int, err error) {
	fills, traded, pipelineErr := c.pipeline(ctx, run, agent, ms, tradesToday)
	if ctx.Err() != nil {
		return fills, ctx.Err()
	}
	settleErr := c.settle(ctx, run, agent, ms, traded, valuations)
	if pipelineErr != nil {
		return fills, pipelineErr
	}
	return fills, settleErr
}

func (c *Cycle) pipeline(ctx context.Context, run *domain.Run, agent domain.Agent, ms decision.MarketState, tradesToday map[string]int) (fills int, traded bool, err error) {
	ledger, err := c.store.GetLedger(ctx, agent.ID)
	if err != nil {
		return 0, false, fmt.Errorf("load ledger for %s: %w", agent.Name, err)
	}
	positions, err := c.store.GetPositions(ctx, ledger.ID)
	if err != nil {
		return 0, false, fmt.Errorf("load positions for %s: %w", agent.Name, err)
	}
	valuer := portfolio.NewValuer(ms.Quotes, c.feed, c.store)

	state := stateAwaitDecision
	attempt := 0
	var prior *decision.PriorAttempt
	var outcome decision.Outcome
	var lastReject risk.Verdict

	for {
		switch state {
		case stateAwaitDecision:
			attempt++
			outcome, err = c.engine.Propose(ctx, decision.Request{
				Agent:     agent,
				Ledger:    *ledger,
				Positions: positions,
				Market:    ms,
				RunID:     run.ID,
				Attempt:   attempt,
				Prior:     prior,
			})
			if err != nil {
				return fills, traded, err
			}
			state = stateValidate

		case stateValidate:
			d := outcome.Decision
			if d.Action == domain.ActionHold {
				return fills, traded, nil
			}

			val, verr := valuer.Value(ctx, *ledger, positions)
			if verr != nil {
				return fills, traded, verr
			}
			price := ms.Quotes[d.Ticker].Price

			var verdict risk.Verdict
			if price <= 0 && agent.InWatchlist(d.Ticker) {
				verdict = risk.Verdict{Rule: "unpriced", Reason: "no current price for " + d.Ticker}
			} else {
				verdict = risk.Validate(risk.Input{
					Agent:       agent,
					Ledger:      *ledger,
					Positions:   positions,
					Decision:    d,
					Price:       price,
					TotalValue:  val.TotalValue,
					TradesToday: tradesToday[agent.ID],
				})
			}

			if verdict.Accepted {
				state = stateExecute
				continue
			}
			observ.IncCounter("constraint_rejections_total", map[string]string{
				"agent": agent.Name, "rule": verdict.Rule,
			})
			lastReject = verdict
			if attempt < c.maxAttempts {
				prior = &decision.PriorAttempt{Decision: d, Reason: verdict.Reason}
				state = stateAwaitDecision
				continue
			}
			state = stateForceHold

		case stateExecute:
			trade, execErr := c.executor.Execute(ctx, exec.Request{
				RunID:     run.ID,
				Agent:     agent,
				Ledger:    *ledger,
				Positions: positions,
				Decision:  outcome.Decision,
				Price:     ms.Quotes[outcome.Decision.Ticker].Price,
				SimTime:   ms.SimTime,
			})
			if trade != nil && outcome.RecordID != "" {
				if lerr := c.store.LinkDecisionTrade(ctx, outcome.RecordID, trade.ID); lerr != nil {
					observ.Log("decision_link_error", map[string]any{"agent": agent.Name, "err": lerr.Error()})
				}
			}
			if execErr != nil {
				// Gateway trouble is an agent-level failure: trade row is
				// REJECTED, ledger untouched, remaining agents continue.
				return fills, traded, fmt.Errorf("execute %s for %s: %w", outcome.Decision, agent.Name, execErr)
			}
			traded = true
			if trade.Status == domain.TradeFilled {
				fills++
				tradesToday[agent.ID]++
				c.sink.Publish(events.TypeTrade, map[string]any{
					"run_id": run.ID, "agent": agent.Name, "ticker": trade.Ticker,
					"side": trade.Side, "shares": trade.Shares,
					"fill_price": trade.FillPrice, "total_value": trade.TotalValue,
				})
			} else {
				c.sink.Publish(events.TypeTrade, map[string]any{
					"run_id": run.ID, "agent": agent.Name, "ticker": trade.Ticker,
					"side": trade.Side, "shares": trade.Shares,
					"status": trade.Status, "reason": trade.Reason,
				})
			}
			return fills, traded, nil

		case stateForceHold:
			observ.IncCounter("forced_holds_total", map[string]string{"agent": agent.Name})
			hold := domain.Hold("forced HOLD after " + fmt.Sprint(c.maxAttempts) +
				" rejected attempts; last: " + lastReject.Reason)
			if _, rerr := c.recordForcedHold(ctx, run, agent, ms, hold); rerr != nil {
				return fills, traded, rerr
			}
			return fills, traded, nil
		}
	}
}

func (c *Cycle) recordForcedHold(ctx context.Context, run *domain.Run, agent domain.Agent, ms decision.MarketState, hold domain.Decision) (string, error) {
	rec := &domain.DecisionRecord{
		RunID:     run.ID,
		AgentID:   agent.ID,
		Attempt:   c.maxAttempts,
		Action:    hold.Action,
		Reasoning: hold.Reasoning,
		ParseOK:   true,
		CreatedAt: ms.SimTime,
	}
	if err := c.store.CreateDecisionRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("record forced hold: %w", err)
	}
	return rec.ID, nil
}

// settle writes exactly one valuation snapshot per agent per cycle and
// publishes the portfolio event for non-trade outcomes.
func (c *Cycle) settle(ctx context.Context, run *domain.Run, agent domain.Agent, ms decision.MarketState, traded bool, valuations map[string]portfolio.Valuation) error {
	ledger, err := c.store.GetLedger(ctx, agent.ID)
	if err != nil {
		return fmt.Errorf("settle ledger for %s: %w", agent.Name, err)
	}
	positions, err := c.store.GetPositions(ctx, ledger.ID)
	if err != nil {
		return fmt.Errorf("settle positions for %s: %w", agent.Name, err)
	}

	valuer := portfolio.NewValuer(ms.Quotes, c.feed, c.store)
	val, err := valuer.Value(ctx, *ledger, positions)
	if err != nil {
		return err
	}

	snap := &domain.ValuationSnapshot{
		AgentID:        agent.ID,
		RunID:          run.ID,
		Cash:           val.Cash,
		PositionsValue: val.PositionsValue,
		TotalValue:     val.TotalValue,
		ReturnPct:      val.ReturnPct,
		At:             ms.SimTime,
	}
	if err := c.store.CreateValuationSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("write valuation snapshot for %s: %w", agent.Name, err)
	}
	valuations[agent.ID] = val

	if !traded {
		c.sink.Publish(events.TypePortfolio, map[string]any{
			"run_id": run.ID, "agent": agent.Name,
			"cash": val.Cash, "total_value": val.TotalValue, "return_pct": val.ReturnPct,
		})
	}
	return nil
}

func (c *Cycle) fetchHistory(ctx context.Context, tickers []string) map[string][]market.Candle {
	if c.historyDays <= 0 {
		return nil
	}
	out := map[string][]market.Candle{}
	for _, t := range tickers {
		candles, err := c.feed.GetHistory(ctx, t, c.historyDays)
		if err != nil {
			// History is enrichment only; agents decide without it.
			continue
		}
		out[t] = candles
	}
	return out
}

func watchlistUnion(agents []domain.Agent) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range agents {
		for _, t := range a.Watchlist {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

func isUnpriced(err error) bool {
	var fe *market.FeedError
	return errors.As(err, &fe) && fe.Type == "unpriced"
}
