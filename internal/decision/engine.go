// Package decision builds agent context, invokes the decision provider
// with bounded retry, and turns raw output into a typed decision. A
// provider that stays malformed degrades to a fallback HOLD; it never
// escalates an error to the cycle.
package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/llm"
	"github.com/tradearena/agent-arena/internal/market"
	"github.com/tradearena/agent-arena/internal/observ"
	"github.com/tradearena/agent-arena/internal/repo"
)

// MarketState is the shared per-cycle snapshot every agent decides
// against. Fetched once by the cycle; read-only here.
type MarketState struct {
	Quotes  map[string]market.Quote
	History map[string][]market.Candle
	SimTime time.Time
}

// PriorAttempt carries the rejection that a revised decision must fix.
type PriorAttempt struct {
	Decision domain.Decision
	Reason   string
}

// Request is one proposal request for one agent.
type Request struct {
	Agent     domain.Agent
	Ledger    domain.Ledger
	Positions []domain.Position
	Market    MarketState
	RunID     string
	Attempt   int // agent-level attempt (1-based)
	Prior     *PriorAttempt
}

// Outcome is the engine's result: always a usable decision (possibly a
// fallback HOLD) plus the ID of the decision record it was logged under.
type Outcome struct {
	Decision domain.Decision
	RecordID string
	Fallback bool // provider never produced a parseable decision
}

type Engine struct {
	provider    llm.Provider
	store       repo.Repository
	maxRetries  int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewEngine(provider llm.Provider, store repo.Repository) *Engine {
	return &Engine{
		provider:    provider,
		store:       store,
		maxRetries:  3,
		backoffBase: time.Second,
		sleep:       sleepCtx,
	}
}

// WithBackoff overrides the retry schedule; tests use a zero base.
func (e *Engine) WithBackoff(retries int, base time.Duration) *Engine {
	e.maxRetries = retries
	e.backoffBase = base
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Propose runs the full call-parse-maybe-tool-use sequence. The only
// returned errors are context cancellation and repository failures;
// provider trouble degrades to a fallback HOLD.
func (e *Engine) Propose(ctx context.Context, req Request) (Outcome, error) {
	prompt := e.buildContext(req)

	raw, parsed, recID, err := e.callWithRetry(ctx, req, prompt)
	if err != nil {
		return Outcome{}, err
	}

	if parsed.Kind == KindAnalysis {
		// One extra round trip with the requested analysis appended.
		observ.IncCounter("decision_tool_use_total", map[string]string{"agent": req.Agent.Name})
		prompt = prompt + "\n" + e.renderAnalysis(req, parsed.Analysis) +
			"\nUsing the analysis above, respond now with your final trade decision JSON."

		raw, err = e.provider.Complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			return e.fallback(ctx, req, "provider failed after analysis round trip: "+err.Error())
		}
		parsed = Parse(raw)
		if parsed.Kind != KindDecision {
			parsed = ParseLegacy(raw)
		}
		recID, err = e.record(ctx, req, raw, parsed)
		if err != nil {
			return Outcome{}, err
		}
	}

	if parsed.Kind != KindDecision {
		return e.fallback(ctx, req, "response unparseable: "+parsed.Err)
	}
	return Outcome{Decision: parsed.Decision, RecordID: recID}, nil
}

// callWithRetry makes up to maxRetries provider calls with doubling
// backoff, persisting a decision record per attempt. It returns the last
// raw text and parse result; a still-failing parse after the budget is
// returned as KindFailure for the caller to degrade.
func (e *Engine) callWithRetry(ctx context.Context, req Request, prompt string) (raw string, parsed Parsed, recID string, err error) {
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.backoffBase<<(attempt-2)); err != nil {
				return "", Parsed{}, "", err
			}
		}

		raw, err = e.provider.Complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", Parsed{}, "", ctx.Err()
			}
			observ.Log("decision_provider_error", map[string]any{
				"agent": req.Agent.Name, "attempt": attempt, "err": err.Error(),
			})
			parsed = Parsed{Kind: KindFailure, Err: err.Error()}
			if _, rerr := e.record(ctx, req, "", parsed); rerr != nil {
				return "", Parsed{}, "", rerr
			}
			continue
		}

		parsed = Parse(raw)
		recID, err = e.record(ctx, req, raw, parsed)
		if err != nil {
			return "", Parsed{}, "", err
		}
		if parsed.Kind != KindFailure {
			return raw, parsed, recID, nil
		}
		observ.IncCounter("decision_parse_failures_total", map[string]string{"agent": req.Agent.Name})
	}
	return raw, parsed, recID, nil
}

func (e *Engine) fallback(ctx context.Context, req Request, why string) (Outcome, error) {
	observ.IncCounter("decision_fallback_hold_total", map[string]string{"agent": req.Agent.Name})
	dec := domain.Hold("fallback HOLD: " + why)
	recID, err := e.record(ctx, req, "", Parsed{Kind: KindDecision, Decision: dec})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Decision: dec, RecordID: recID, Fallback: true}, nil
}

func (e *Engine) record(ctx context.Context, req Request, raw string, parsed Parsed) (string, error) {
	rec := &domain.DecisionRecord{
		RunID:       req.RunID,
		AgentID:     req.Agent.ID,
		Attempt:     req.Attempt,
		RawResponse: raw,
		ParseOK:     parsed.Kind != KindFailure,
		CreatedAt:   req.Market.SimTime,
	}
	switch parsed.Kind {
	case KindDecision:
		rec.Action = parsed.Decision.Action
		rec.Ticker = parsed.Decision.Ticker
		rec.Shares = parsed.Decision.Shares
		rec.Reasoning = parsed.Decision.Reasoning
	case KindAnalysis:
		rec.Reasoning = fmt.Sprintf("requested analysis: %v %v", parsed.Analysis.Tickers, parsed.Analysis.Metrics)
	case KindFailure:
		rec.Reasoning = parsed.Err
	}
	if err := e.store.CreateDecisionRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("persist decision record: %w", err)
	}
	return rec.ID, nil
}

func (e *Engine) buildContext(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a trading agent competing against others.\n", req.Agent.Name)
	fmt.Fprintf(&b, "Date: %s\n\n", req.Market.SimTime.Format("2006-01-02 15:04"))

	fmt.Fprintf(&b, "Cash balance: %.2f (initial capital %.2f)\n", req.Ledger.CashBalance, req.Ledger.InitialCapital)
	if len(req.Positions) == 0 {
		b.WriteString("Positions: none\n")
	} else {
		b.WriteString("Positions:\n")
		for _, p := range req.Positions {
			line := fmt.Sprintf("  %s: %d shares @ avg cost %.2f", p.Ticker, p.Shares, p.AvgCost)
			if q, ok := req.Market.Quotes[p.Ticker]; ok {
				line += fmt.Sprintf(" (now %.2f)", q.Price)
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\nMarket snapshot:\n")
	for _, t := range req.Agent.Watchlist {
		if q, ok := req.Market.Quotes[t]; ok {
			fmt.Fprintf(&b, "  %s: %.2f (%+.2f%%) vol %d\n", t, q.Price, q.ChangePct, q.Volume)
		}
	}

	fmt.Fprintf(&b, "\nRules: trade only %s; max %.0f%% of portfolio value per trade; allowed leverage tiers %v.\n",
		strings.Join(req.Agent.Watchlist, ", "), req.Agent.MaxPositionPct*100, req.Agent.LeverageTiers)

	if req.Prior != nil {
		fmt.Fprintf(&b, "\nYour previous decision (%s) was rejected: %s\n", req.Prior.Decision, req.Prior.Reason)
		b.WriteString("Revise your decision to satisfy the constraint, or HOLD.\n")
	}

	b.WriteString(`
Respond with a single JSON object:
  {"action":"BUY|SELL|HOLD","ticker":"...","shares":N,"leverage":1,"confidence":0.0,"reasoning":"..."}
or, to request indicator analysis first:
  {"request_analysis":{"tickers":["..."],"metrics":["sma","ema","rsi"]}}
`)
	return b.String()
}

func (e *Engine) renderAnalysis(req Request, ar AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Requested analysis:\n")
	for _, t := range ar.Tickers {
		t = strings.ToUpper(t)
		b.WriteString(market.Summarize(t, req.Market.History[t], ar.Metrics))
	}
	return b.String()
}
