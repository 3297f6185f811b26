package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/events"
	"github.com/tradearena/agent-arena/internal/observ"
	"github.com/tradearena/agent-arena/internal/portfolio"
	"github.com/tradearena/agent-arena/internal/repo"
)

// RunConfig drives one run over a date range.
type RunConfig struct {
	Start           time.Time
	End             time.Time
	IntervalMinutes int
	SessionMinutes  int
}

// Orchestrator executes a run: calendar days in order, weekends
// skipped, 1..N intraday cycles per day, incremental end-of-day
// persistence and a final ranking. Cancellation (via ctx) is honored at
// day and cycle boundaries only, never mid-agent.
type Orchestrator struct {
	store repo.Repository
	sink  events.Sink
	cycle *Cycle
	cfg   RunConfig
}

func NewOrchestrator(store repo.Repository, sink events.Sink, cycle *Cycle, cfg RunConfig) *Orchestrator {
	return &Orchestrator{store: store, sink: sink, cycle: cycle, cfg: cfg}
}

// sessionOpen is when the first intraday cycle of a day is stamped.
var sessionOpen = 9*time.Hour + 30*time.Minute

// Execute runs the whole date range and always returns the run in its
// terminal state. The error mirrors the FAILED reason when there is one.
func (o *Orchestrator) Execute(ctx context.Context) (*domain.Run, error) {
	agents, err := o.store.ListActiveAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no active agents")
	}

	run := &domain.Run{
		StartDate:       o.cfg.Start,
		EndDate:         o.cfg.End,
		IntervalMinutes: o.cfg.IntervalMinutes,
		Status:          domain.RunRunning,
		StartedAt:       time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	o.sink.Publish(events.TypeRunStarted, map[string]any{
		"run_id": run.ID,
		"start":  o.cfg.Start.Format("2006-01-02"),
		"end":    o.cfg.End.Format("2006-01-02"),
		"agents": len(agents),
	})

	cyclesPerDay := 1
	if o.cfg.IntervalMinutes > 0 && o.cfg.SessionMinutes > o.cfg.IntervalMinutes {
		cyclesPerDay = o.cfg.SessionMinutes / o.cfg.IntervalMinutes
	}

	daysDone := 0
	totalFills := 0

	for day := o.cfg.Start; !day.After(o.cfg.End); day = day.AddDate(0, 0, 1) {
		if !isTradingDay(day) {
			continue
		}
		if ctx.Err() != nil {
			return o.finish(run, domain.RunCancelled, daysDone, totalFills, "")
		}

		tradesToday := map[string]int{}
		var lastVals map[string]portfolio.Valuation

		for i := 0; i < cyclesPerDay; i++ {
			if ctx.Err() != nil {
				return o.finish(run, domain.RunCancelled, daysDone, totalFills, "")
			}
			simTime := day.Add(sessionOpen + time.Duration(i*o.cfg.IntervalMinutes)*time.Minute)
			res, err := o.cycle.Run(ctx, run, agents, simTime, tradesToday)
			totalFills += res.Fills
			if err != nil {
				if ctx.Err() != nil {
					return o.finish(run, domain.RunCancelled, daysDone, totalFills, "")
				}
				return o.finish(run, domain.RunFailed, daysDone, totalFills, err.Error())
			}
			lastVals = res.Valuations
		}

		if err := o.persistDay(ctx, run, agents, day, lastVals); err != nil {
			return o.finish(run, domain.RunFailed, daysDone, totalFills, err.Error())
		}
		daysDone++

		o.sink.Publish(events.TypeEODSummary, map[string]any{
			"run_id": run.ID,
			"date":   day.Format("2006-01-02"),
			"day":    daysDone,
			"totals": eodTotals(agents, lastVals),
		})
	}

	if err := o.assignRanks(ctx, run, agents); err != nil {
		return o.finish(run, domain.RunFailed, daysDone, totalFills, err.Error())
	}
	return o.finish(run, domain.RunCompleted, daysDone, totalFills, "")
}

// persistDay upserts each agent's running result and appends the
// append-only daily snapshot; incremental so a later failure keeps
// every completed day queryable.
func (o *Orchestrator) persistDay(ctx context.Context, run *domain.Run, agents []domain.Agent, day time.Time, vals map[string]portfolio.Valuation) error {
	for _, a := range agents {
		val, ok := vals[a.ID]
		if !ok {
			observ.Log("eod_missing_valuation", map[string]any{"agent": a.Name, "date": day.Format("2006-01-02")})
			continue
		}
		if err := o.store.UpsertRunAgentResult(ctx, &domain.RunAgentResult{
			RunID:          run.ID,
			AgentID:        a.ID,
			FinalCash:      val.Cash,
			PositionsValue: val.PositionsValue,
			TotalValue:     val.TotalValue,
			ReturnPct:      val.ReturnPct,
		}); err != nil {
			return fmt.Errorf("upsert run result for %s: %w", a.Name, err)
		}
		if err := o.store.AppendRunSnapshot(ctx, &domain.RunSnapshot{
			RunID:      run.ID,
			AgentID:    a.ID,
			Date:       day.Format("2006-01-02"),
			Cash:       val.Cash,
			TotalValue: val.TotalValue,
			ReturnPct:  val.ReturnPct,
		}); err != nil {
			return fmt.Errorf("append run snapshot for %s: %w", a.Name, err)
		}
	}
	return nil
}

// assignRanks orders agents by final total value descending, ties broken
// by creation order, and writes ranks back. Normal completion only.
func (o *Orchestrator) assignRanks(ctx context.Context, run *domain.Run, agents []domain.Agent) error {
	results, err := o.store.ListRunAgentResults(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list run results: %w", err)
	}
	seq := map[string]int{}
	for _, a := range agents {
		seq[a.ID] = a.Seq
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalValue != results[j].TotalValue {
			return results[i].TotalValue > results[j].TotalValue
		}
		return seq[results[i].AgentID] < seq[results[j].AgentID]
	})
	for i := range results {
		results[i].Rank = i + 1
		if err := o.store.UpsertRunAgentResult(ctx, &results[i]); err != nil {
			return fmt.Errorf("write rank: %w", err)
		}
	}
	return nil
}

// finish transitions the run to its terminal status exactly once and
// publishes the closing event.
func (o *Orchestrator) finish(run *domain.Run, status domain.RunStatus, days, fills int, reason string) (*domain.Run, error) {
	now := time.Now().UTC()
	run.Status = status
	run.TradingDays = days
	run.TotalTrades = fills
	run.FailureReason = reason
	run.FinishedAt = &now

	if err := o.store.UpdateRun(context.Background(), run); err != nil {
		// The terminal state must land even when the caller's ctx is
		// cancelled, hence the background context; a store failure here
		// is the only thing that can stop it.
		observ.Log("run_finish_error", map[string]any{"run_id": run.ID, "err": err.Error()})
	}

	payload := map[string]any{
		"run_id": run.ID, "status": status,
		"trading_days": days, "total_trades": fills,
	}
	if reason != "" {
		payload["failure_reason"] = reason
		o.sink.Publish(events.TypeError, payload)
	}
	// run_complete means the run actually completed; failed and
	// cancelled runs report their status through the store and the
	// error event
	if status == domain.RunCompleted {
		o.sink.Publish(events.TypeRunComplete, payload)
	}

	observ.IncCounter("runs_finished_total", map[string]string{"status": string(status)})
	if status == domain.RunFailed {
		return run, fmt.Errorf("run %s failed: %s", run.ID, reason)
	}
	return run, nil
}

func eodTotals(agents []domain.Agent, vals map[string]portfolio.Valuation) []map[string]any {
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		val, ok := vals[a.ID]
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"agent": a.Name, "total_value": val.TotalValue, "return_pct": val.ReturnPct,
		})
	}
	return out
}

// isTradingDay skips weekends; a market-holiday calendar would slot in
// here.
func isTradingDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}
