package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tradearena/agent-arena/internal/broker"
	"github.com/tradearena/agent-arena/internal/decision"
	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/events"
	"github.com/tradearena/agent-arena/internal/exec"
	"github.com/tradearena/agent-arena/internal/llm"
	"github.com/tradearena/agent-arena/internal/market"
	"github.com/tradearena/agent-arena/internal/repo"
)

// harness wires a full pipeline against in-memory collaborators.
type harness struct {
	store    *repo.Memory
	feed     *market.StubFeed
	provider *llm.StubProvider
	gateway  broker.Gateway
	sink     *events.MemorySink
	cycle    *Cycle
	agents   []domain.Agent
}

type agentSpec struct {
	name      string
	watchlist []string
	maxPct    float64
	maxTrades int
	tiers     []int
}

func newHarness(t *testing.T, specs []agentSpec, responses ...string) *harness {
	t.Helper()
	ctx := context.Background()
	store := repo.NewMemory()

	var agents []domain.Agent
	for _, s := range specs {
		maxPct := s.maxPct
		if maxPct == 0 {
			maxPct = 0.30
		}
		tiers := s.tiers
		if len(tiers) == 0 {
			tiers = []int{1}
		}
		a := domain.Agent{
			Name: s.name, IsActive: true, Watchlist: s.watchlist,
			MaxPositionPct: maxPct, MaxTradesPerDay: s.maxTrades, LeverageTiers: tiers,
		}
		if err := store.CreateAgent(ctx, &a); err != nil {
			t.Fatalf("create agent: %v", err)
		}
		if err := store.CreateLedger(ctx, &domain.Ledger{
			AgentID: a.ID, CashBalance: 100000, InitialCapital: 100000,
		}); err != nil {
			t.Fatalf("create ledger: %v", err)
		}
		agents = append(agents, a)
	}

	feed := market.NewStubFeed()
	provider := llm.NewStubProvider(responses...)
	gateway := broker.NewStubGateway()
	sink := events.NewMemorySink()

	eng := decision.NewEngine(provider, store).WithBackoff(3, 0)
	cycle := NewCycle(eng, exec.New(gateway, store), store, feed, sink, 3, 0)

	return &harness{
		store: store, feed: feed, provider: provider,
		gateway: gateway, sink: sink, cycle: cycle, agents: agents,
	}
}

func (h *harness) newRun(t *testing.T) *domain.Run {
	t.Helper()
	run := &domain.Run{Status: domain.RunRunning, StartedAt: time.Now().UTC()}
	if err := h.store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

var cycleTime = time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

func countType(types []string, want string) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func TestCycleHoldSettlesEveryAgent(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{
			{name: "alpha", watchlist: []string{"AAPL"}},
			{name: "beta", watchlist: []string{"NVDA"}},
		},
		`{"action":"HOLD","reasoning":"waiting"}`,
	)
	h.feed.SetPrice("AAPL", 200)
	h.feed.SetPrice("NVDA", 700)
	run := h.newRun(t)

	res, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, map[string]int{})
	if err != nil {
		t.Fatalf("cycle error = %v", err)
	}
	if res.Fills != 0 {
		t.Errorf("fills = %d, want 0", res.Fills)
	}
	if len(res.Valuations) != 2 {
		t.Fatalf("valuations = %d, want 2", len(res.Valuations))
	}
	for _, a := range h.agents {
		snaps := h.store.Valuations(a.ID)
		if len(snaps) != 1 {
			t.Errorf("%s snapshots = %d, want exactly 1", a.Name, len(snaps))
		}
		if v := res.Valuations[a.ID]; v.TotalValue != 100000 {
			t.Errorf("%s total = %.2f, want 100000", a.Name, v.TotalValue)
		}
	}

	types := h.sink.Types()
	if countType(types, events.TypeCycleStarted) != 1 {
		t.Errorf("cycle_started events = %d", countType(types, events.TypeCycleStarted))
	}
	if countType(types, events.TypePortfolio) != 2 {
		t.Errorf("portfolio events = %d, want one per holding agent", countType(types, events.TypePortfolio))
	}
	if countType(types, events.TypeTrade) != 0 {
		t.Errorf("unexpected trade events: %v", types)
	}
}

func TestCycleBuyFillsAndPublishes(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{{name: "alpha", watchlist: []string{"AAPL"}}},
		`{"action":"BUY","ticker":"AAPL","shares":100,"reasoning":"momentum"}`,
	)
	h.feed.SetPrice("AAPL", 200)
	run := h.newRun(t)

	tradesToday := map[string]int{}
	res, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, tradesToday)
	if err != nil {
		t.Fatalf("cycle error = %v", err)
	}
	if res.Fills != 1 {
		t.Fatalf("fills = %d, want 1", res.Fills)
	}
	agent := h.agents[0]
	if tradesToday[agent.ID] != 1 {
		t.Errorf("tradesToday = %d, want 1", tradesToday[agent.ID])
	}

	trades := h.store.Trades(agent.ID)
	if len(trades) != 1 || trades[0].Status != domain.TradeFilled {
		t.Fatalf("trades = %+v", trades)
	}
	// backtest trades land on the simulated timeline, not wall-clock
	if !trades[0].CreatedAt.Equal(cycleTime) {
		t.Errorf("trade timestamp = %v, want simulated time %v", trades[0].CreatedAt, cycleTime)
	}

	types := h.sink.Types()
	if countType(types, events.TypeTrade) != 1 {
		t.Errorf("trade events = %d, want 1", countType(types, events.TypeTrade))
	}
	// trade outcome: no portfolio event for this agent
	if countType(types, events.TypePortfolio) != 0 {
		t.Errorf("portfolio events = %d, want 0 on a trade outcome", countType(types, events.TypePortfolio))
	}
	// snapshot still written exactly once
	if snaps := h.store.Valuations(agent.ID); len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1", len(snaps))
	}

	// decision record linked to the trade
	recs := h.store.DecisionRecords(agent.ID)
	if len(recs) != 1 || recs[0].TradeID != trades[0].ID {
		t.Errorf("decision records = %+v", recs)
	}
}

func TestCycleFeedbackLoopRevisesDecision(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{{name: "alpha", watchlist: []string{"AAPL"}}},
		// first attempt breaches the 30% position cap, revision fits
		`{"action":"BUY","ticker":"AAPL","shares":500,"reasoning":"all in"}`,
		`{"action":"BUY","ticker":"AAPL","shares":100,"reasoning":"sized down"}`,
	)
	h.feed.SetPrice("AAPL", 100)
	run := h.newRun(t)

	res, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, map[string]int{})
	if err != nil {
		t.Fatalf("cycle error = %v", err)
	}
	if res.Fills != 1 {
		t.Fatalf("fills = %d, want the revised decision to fill", res.Fills)
	}

	agent := h.agents[0]
	trades := h.store.Trades(agent.ID)
	if len(trades) != 1 || trades[0].Shares != 100 {
		t.Fatalf("trades = %+v, want one fill of the revised 100 shares", trades)
	}

	recs := h.store.DecisionRecords(agent.ID)
	if len(recs) != 2 {
		t.Fatalf("decision records = %d, want one per attempt", len(recs))
	}
	if recs[0].Attempt != 1 || recs[1].Attempt != 2 {
		t.Errorf("attempt numbers = %d, %d", recs[0].Attempt, recs[1].Attempt)
	}
}

func TestCycleForcedHoldAfterAttemptBudget(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{{name: "alpha", watchlist: []string{"AAPL"}}},
		// every attempt breaches the position cap
		`{"action":"BUY","ticker":"AAPL","shares":500,"reasoning":"stubborn"}`,
	)
	h.feed.SetPrice("AAPL", 100)
	run := h.newRun(t)

	res, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, map[string]int{})
	if err != nil {
		t.Fatalf("cycle error = %v", err)
	}
	if res.Fills != 0 {
		t.Fatalf("fills = %d, want 0", res.Fills)
	}

	agent := h.agents[0]
	if trades := h.store.Trades(agent.ID); len(trades) != 0 {
		t.Fatalf("forced hold still traded: %+v", trades)
	}

	recs := h.store.DecisionRecords(agent.ID)
	// three rejected proposals plus the forced HOLD record
	if len(recs) != 4 {
		t.Fatalf("decision records = %d, want 4", len(recs))
	}
	last := recs[len(recs)-1]
	if last.Action != domain.ActionHold || !strings.Contains(last.Reasoning, "forced HOLD") {
		t.Errorf("final record = %+v", last)
	}

	// settle still happened, with the portfolio event
	if snaps := h.store.Valuations(agent.ID); len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1", len(snaps))
	}
	if countType(h.sink.Types(), events.TypePortfolio) != 1 {
		t.Errorf("portfolio events = %d, want 1", countType(h.sink.Types(), events.TypePortfolio))
	}
}

func TestCycleAgentFailureIsIsolated(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{
			{name: "alpha", watchlist: []string{"AAPL"}},
			{name: "beta", watchlist: []string{"NVDA"}},
		},
		`{"action":"BUY","ticker":"AAPL","shares":10,"reasoning":"up"}`,
		`{"action":"HOLD","reasoning":"waiting"}`,
	)
	h.feed.SetPrice("AAPL", 100)
	h.feed.SetPrice("NVDA", 700)
	h.gateway.(*broker.StubGateway).FailTicker("AAPL", errors.New("connection refused"))
	run := h.newRun(t)

	res, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, map[string]int{})
	if err != nil {
		t.Fatalf("one agent's gateway failure must not fail the cycle: %v", err)
	}
	if res.Fills != 0 {
		t.Errorf("fills = %d, want 0", res.Fills)
	}

	// both agents still settled
	if len(res.Valuations) != 2 {
		t.Fatalf("valuations = %d, want 2", len(res.Valuations))
	}
	types := h.sink.Types()
	if countType(types, events.TypeError) != 1 {
		t.Errorf("error events = %d, want 1", countType(types, events.TypeError))
	}

	// the failed order is a REJECTED row, cash untouched
	alpha := h.agents[0]
	trades := h.store.Trades(alpha.ID)
	if len(trades) != 1 || trades[0].Status != domain.TradeRejected {
		t.Fatalf("alpha trades = %+v", trades)
	}
	ledger, _ := h.store.GetLedger(context.Background(), alpha.ID)
	if ledger.CashBalance != 100000 {
		t.Errorf("alpha cash = %.2f, want untouched 100000", ledger.CashBalance)
	}
}

func TestCycleFailsWhenMarketUnavailable(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{{name: "alpha", watchlist: []string{"AAPL"}}},
		`{"action":"HOLD","reasoning":"n/a"}`,
	)
	h.feed.Fail(true)
	run := h.newRun(t)

	_, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, map[string]int{})
	if err == nil {
		t.Fatalf("expected fatal error when no quotes are available")
	}
}

func TestCycleDailyTradeLimitCarriesAcrossCycles(t *testing.T) {
	h := newHarness(t,
		[]agentSpec{{name: "alpha", watchlist: []string{"AAPL"}, maxTrades: 1}},
		`{"action":"BUY","ticker":"AAPL","shares":10,"reasoning":"one"}`,
		`{"action":"BUY","ticker":"AAPL","shares":10,"reasoning":"two"}`,
		`{"action":"HOLD","reasoning":"limit acknowledged"}`,
	)
	h.feed.SetPrice("AAPL", 100)
	run := h.newRun(t)
	tradesToday := map[string]int{}

	res1, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime, tradesToday)
	if err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}
	if res1.Fills != 1 {
		t.Fatalf("cycle 1 fills = %d, want 1", res1.Fills)
	}

	// second cycle of the same day: the limit is already spent, the
	// second BUY is rejected and the agent revises to HOLD
	res2, err := h.cycle.Run(context.Background(), run, h.agents, cycleTime.Add(30*time.Minute), tradesToday)
	if err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}
	if res2.Fills != 0 {
		t.Fatalf("cycle 2 fills = %d, want 0 past the daily limit", res2.Fills)
	}
	if got := len(h.store.Trades(h.agents[0].ID)); got != 1 {
		t.Errorf("trades = %d, want 1", got)
	}
}
