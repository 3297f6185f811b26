// Package repo defines the durable store contract for agents, ledgers,
// trades, decision records and run bookkeeping. Two implementations are
// provided: a Postgres store (gorm) and an in-memory store used by
// tests and mock mode.
package repo

import (
	"context"
	"errors"

	"github.com/tradearena/agent-arena/internal/domain"
)

var ErrNotFound = errors.New("repo: not found")

// FillApply groups the rows touched by one confirmed fill. Implementations
// must apply all of them in a single transaction: either the trade flips
// to FILLED together with the ledger/position change, or nothing does.
type FillApply struct {
	Trade          *domain.Trade
	Ledger         *domain.Ledger
	Position       *domain.Position // nil when no position row changes
	DeletePosition bool             // SELL closed the position entirely
}

type Repository interface {
	CreateAgent(ctx context.Context, a *domain.Agent) error
	ListActiveAgents(ctx context.Context) ([]domain.Agent, error)

	CreateLedger(ctx context.Context, l *domain.Ledger) error
	GetLedger(ctx context.Context, agentID string) (*domain.Ledger, error)
	GetPositions(ctx context.Context, ledgerID string) ([]domain.Position, error)

	CreateTrade(ctx context.Context, t *domain.Trade) error
	UpdateTrade(ctx context.Context, t *domain.Trade) error
	ApplyFill(ctx context.Context, f FillApply) error

	CreateDecisionRecord(ctx context.Context, d *domain.DecisionRecord) error
	LinkDecisionTrade(ctx context.Context, decisionID, tradeID string) error
	CreateValuationSnapshot(ctx context.Context, v *domain.ValuationSnapshot) error

	CreateRun(ctx context.Context, r *domain.Run) error
	UpdateRun(ctx context.Context, r *domain.Run) error
	UpsertRunAgentResult(ctx context.Context, res *domain.RunAgentResult) error
	ListRunAgentResults(ctx context.Context, runID string) ([]domain.RunAgentResult, error)
	AppendRunSnapshot(ctx context.Context, s *domain.RunSnapshot) error
	ListRunSnapshots(ctx context.Context, runID string) ([]domain.RunSnapshot, error)

	SaveQuote(ctx context.Context, q *domain.QuoteRecord) error
	LastQuote(ctx context.Context, ticker string) (*domain.QuoteRecord, error)
}
