package seed

import (
	"context"
	"testing"

	"github.com/tradearena/agent-arena/internal/config"
	"github.com/tradearena/agent-arena/internal/repo"
)

func testSeeds() []config.AgentSeed {
	return []config.AgentSeed{
		{Name: "alpha", Provider: "openai", InitialCapital: 100000, Watchlist: []string{"AAPL"}, MaxPositionPct: 0.3, LeverageTiers: []int{1}},
		{Name: "beta", Provider: "openai", InitialCapital: 50000, Watchlist: []string{"NVDA"}, MaxPositionPct: 0.2, LeverageTiers: []int{1, 5}},
	}
}

func TestAgentsCreatesLedgers(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()

	n, err := Agents(ctx, store, testSeeds())
	if err != nil {
		t.Fatalf("Agents() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("created = %d, want 2", n)
	}

	agents, _ := store.ListActiveAgents(ctx)
	if len(agents) != 2 {
		t.Fatalf("agents = %d", len(agents))
	}
	for i, want := range []float64{100000, 50000} {
		ledger, err := store.GetLedger(ctx, agents[i].ID)
		if err != nil {
			t.Fatalf("ledger for %s: %v", agents[i].Name, err)
		}
		if ledger.CashBalance != want || ledger.InitialCapital != want {
			t.Errorf("%s ledger = %+v, want capital %.0f", agents[i].Name, ledger, want)
		}
	}
}

func TestAgentsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()

	if _, err := Agents(ctx, store, testSeeds()); err != nil {
		t.Fatal(err)
	}
	n, err := Agents(ctx, store, testSeeds())
	if err != nil {
		t.Fatalf("second seed error = %v", err)
	}
	if n != 0 {
		t.Errorf("reseed created = %d, want 0", n)
	}
	if agents, _ := store.ListActiveAgents(ctx); len(agents) != 2 {
		t.Errorf("agents = %d, want 2", len(agents))
	}
}

func TestAgentsPartialSeed(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()

	if _, err := Agents(ctx, store, testSeeds()[:1]); err != nil {
		t.Fatal(err)
	}
	n, err := Agents(ctx, store, testSeeds())
	if err != nil {
		t.Fatalf("Agents() error = %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want only the missing agent", n)
	}
}
