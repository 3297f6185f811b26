// Package seed creates agents and their ledgers from config. Agents are
// created once; an existing name is left untouched so reseeding is safe.
package seed

import (
	"context"
	"fmt"

	"github.com/tradearena/agent-arena/internal/config"
	"github.com/tradearena/agent-arena/internal/domain"
	"github.com/tradearena/agent-arena/internal/observ"
	"github.com/tradearena/agent-arena/internal/repo"
)

// Agents seeds every configured agent that does not exist yet and
// returns how many were created.
func Agents(ctx context.Context, store repo.Repository, seeds []config.AgentSeed) (int, error) {
	existing, err := store.ListActiveAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list agents: %w", err)
	}
	byName := map[string]bool{}
	for _, a := range existing {
		byName[a.Name] = true
	}

	created := 0
	for _, s := range seeds {
		if byName[s.Name] {
			continue
		}
		agent := &domain.Agent{
			Name:            s.Name,
			Provider:        s.Provider,
			IsActive:        true,
			Watchlist:       s.Watchlist,
			MaxPositionPct:  s.MaxPositionPct,
			MaxTradesPerDay: s.MaxTradesPerDay,
			LeverageTiers:   s.LeverageTiers,
		}
		if err := store.CreateAgent(ctx, agent); err != nil {
			return created, fmt.Errorf("create agent %s: %w", s.Name, err)
		}
		if err := store.CreateLedger(ctx, &domain.Ledger{
			AgentID:        agent.ID,
			CashBalance:    s.InitialCapital,
			InitialCapital: s.InitialCapital,
		}); err != nil {
			return created, fmt.Errorf("create ledger for %s: %w", s.Name, err)
		}
		observ.Log("agent_seeded", map[string]any{
			"agent": s.Name, "capital": s.InitialCapital, "watchlist": s.Watchlist,
		})
		created++
	}
	return created, nil
}
