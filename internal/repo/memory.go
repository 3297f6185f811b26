package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradearena/agent-arena/internal/domain"
)

// Memory is a map-backed Repository used by tests and mock mode. It
// honors the same transactional contract as the Postgres store: ApplyFill
// mutates all rows under one lock acquisition.
type Memory struct {
	mu         sync.RWMutex
	agents     map[string]domain.Agent
	ledgers    map[string]domain.Ledger // keyed by ledger ID
	positions  map[string]domain.Position
	trades     map[string]domain.Trade
	decisions  []domain.DecisionRecord
	valuations []domain.ValuationSnapshot
	runs       map[string]domain.Run
	runResults map[string]domain.RunAgentResult // keyed runID+"/"+agentID
	runSnaps   []domain.RunSnapshot
	quotes     map[string]domain.QuoteRecord
	nextSeq    int
}

func NewMemory() *Memory {
	return &Memory{
		agents:     map[string]domain.Agent{},
		ledgers:    map[string]domain.Ledger{},
		positions:  map[string]domain.Position{},
		trades:     map[string]domain.Trade{},
		runs:       map[string]domain.Run{},
		runResults: map[string]domain.RunAgentResult{},
		quotes:     map[string]domain.QuoteRecord{},
	}
}

func (m *Memory) CreateAgent(_ context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Seq == 0 {
		m.nextSeq++
		a.Seq = m.nextSeq
	} else if a.Seq > m.nextSeq {
		m.nextSeq = a.Seq
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.agents[a.ID] = *a
	return nil
}

func (m *Memory) ListActiveAgents(_ context.Context) ([]domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) CreateLedger(_ context.Context, l *domain.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.UpdatedAt = time.Now().UTC()
	m.ledgers[l.ID] = *l
	return nil
}

func (m *Memory) GetLedger(_ context.Context, agentID string) (*domain.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.ledgers {
		if l.AgentID == agentID {
			cp := l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetPositions(_ context.Context, ledgerID string) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Position
	for _, p := range m.positions {
		if p.LedgerID == ledgerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *Memory) CreateTrade(_ context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	// the executor stamps trades with the run's simulated clock; only
	// fill in wall-clock time when no caller did
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	m.trades[t.ID] = *t
	return nil
}

func (m *Memory) UpdateTrade(_ context.Context, t *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[t.ID]; !ok {
		return ErrNotFound
	}
	m.trades[t.ID] = *t
	return nil
}

func (m *Memory) ApplyFill(_ context.Context, f FillApply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[f.Trade.ID]; !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	m.trades[f.Trade.ID] = *f.Trade
	f.Ledger.UpdatedAt = now
	m.ledgers[f.Ledger.ID] = *f.Ledger
	if f.Position != nil {
		if f.DeletePosition {
			delete(m.positions, f.Position.ID)
		} else {
			if f.Position.ID == "" {
				f.Position.ID = uuid.NewString()
			}
			f.Position.UpdatedAt = now
			m.positions[f.Position.ID] = *f.Position
		}
	}
	return nil
}

func (m *Memory) CreateDecisionRecord(_ context.Context, d *domain.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.decisions = append(m.decisions, *d)
	return nil
}

func (m *Memory) LinkDecisionTrade(_ context.Context, decisionID, tradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.decisions {
		if m.decisions[i].ID == decisionID {
			m.decisions[i].TradeID = tradeID
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateValuationSnapshot(_ context.Context, v *domain.ValuationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	m.valuations = append(m.valuations, *v)
	return nil
}

func (m *Memory) CreateRun(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.runs[r.ID] = *r
	return nil
}

func (m *Memory) UpdateRun(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		return ErrNotFound
	}
	m.runs[r.ID] = *r
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := r
	return &cp, nil
}

func (m *Memory) UpsertRunAgentResult(_ context.Context, res *domain.RunAgentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := res.RunID + "/" + res.AgentID
	if prev, ok := m.runResults[key]; ok {
		res.ID = prev.ID
	} else if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.UpdatedAt = time.Now().UTC()
	m.runResults[key] = *res
	return nil
}

func (m *Memory) ListRunAgentResults(_ context.Context, runID string) ([]domain.RunAgentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RunAgentResult
	for _, r := range m.runResults {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *Memory) AppendRunSnapshot(_ context.Context, s *domain.RunSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.runSnaps = append(m.runSnaps, *s)
	return nil
}

func (m *Memory) ListRunSnapshots(_ context.Context, runID string) ([]domain.RunSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RunSnapshot
	for _, s := range m.runSnaps {
		if s.RunID == runID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) SaveQuote(_ context.Context, q *domain.QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.UpdatedAt = time.Now().UTC()
	m.quotes[q.Ticker] = *q
	return nil
}

func (m *Memory) LastQuote(_ context.Context, ticker string) (*domain.QuoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[ticker]
	if !ok {
		return nil, ErrNotFound
	}
	cp := q
	return &cp, nil
}

// Trades returns all trades for an agent in creation order. Test helper
// and ranking diagnostics; not part of the Repository interface.
func (m *Memory) Trades(agentID string) []domain.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Trade
	for _, t := range m.trades {
		if agentID == "" || t.AgentID == agentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Valuations returns all valuation snapshots in insertion order.
func (m *Memory) Valuations(agentID string) []domain.ValuationSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ValuationSnapshot
	for _, v := range m.valuations {
		if agentID == "" || v.AgentID == agentID {
			out = append(out, v)
		}
	}
	return out
}

// DecisionRecords returns the append-only decision log.
func (m *Memory) DecisionRecords(agentID string) []domain.DecisionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.DecisionRecord
	for _, d := range m.decisions {
		if agentID == "" || d.AgentID == agentID {
			out = append(out, d)
		}
	}
	// attempts within one cycle share a simulated timestamp
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
