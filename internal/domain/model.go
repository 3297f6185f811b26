package domain

import (
	"time"
)

// Action is the direction of a proposed trade.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// TradeStatus lifecycle: PENDING -> FILLED | REJECTED | CANCELLED.
// Terminal states are set exactly once and never mutated afterward.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeFilled    TradeStatus = "FILLED"
	TradeRejected  TradeStatus = "REJECTED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// RunStatus lifecycle: PENDING -> RUNNING -> COMPLETED | FAILED | CANCELLED.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// LeverageTiers is the discrete set agents may draw allowed tiers from.
var LeverageTiers = []int{1, 5, 10, 20}

// Agent is a competing trading identity. Immutable during a run except
// for the IsActive toggle.
type Agent struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Seq             int       `gorm:"uniqueIndex;not null" json:"seq"` // creation order, drives deterministic processing
	Name            string    `gorm:"type:varchar(64);uniqueIndex" json:"name"`
	Provider        string    `gorm:"type:varchar(32)" json:"provider"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	Watchlist       []string  `gorm:"serializer:json" json:"watchlist"`
	MaxPositionPct  float64   `json:"max_position_pct"`   // fraction of total valuation per trade, e.g. 0.30
	MaxTradesPerDay int       `json:"max_trades_per_day"` // 0 = unlimited
	LeverageTiers   []int     `gorm:"serializer:json" json:"leverage_tiers"`
	CreatedAt       time.Time `json:"created_at"`
}

// InWatchlist reports whether ticker is tradeable for this agent.
func (a Agent) InWatchlist(ticker string) bool {
	for _, t := range a.Watchlist {
		if t == ticker {
			return true
		}
	}
	return false
}

// AllowsLeverage reports whether lev is one of the agent's allowed tiers.
func (a Agent) AllowsLeverage(lev int) bool {
	for _, t := range a.LeverageTiers {
		if t == lev {
			return true
		}
	}
	return false
}

// Ledger is an agent's isolated financial state. Cash may go negative
// only up to (leverage-1) x InitialCapital when leverage is used.
// Mutated only by the trade executor on a FILLED trade.
type Ledger struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AgentID        string    `gorm:"uniqueIndex;type:varchar(36);not null" json:"agent_id"`
	CashBalance    float64   `json:"cash_balance"`
	InitialCapital float64   `json:"initial_capital"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Position is a held lot of a single ticker; unique per (ledger, ticker).
type Position struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LedgerID  string    `gorm:"index:idx_ledger_ticker,unique;type:varchar(36);not null" json:"ledger_id"`
	Ticker    string    `gorm:"index:idx_ledger_ticker,unique;type:varchar(16);not null" json:"ticker"`
	Shares    int       `gorm:"not null" json:"shares"`
	AvgCost   float64   `json:"avg_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trade is one order attempt and its outcome.
type Trade struct {
	ID         string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RunID      string      `gorm:"index;type:varchar(36)" json:"run_id,omitempty"`
	AgentID    string      `gorm:"index;type:varchar(36);not null" json:"agent_id"`
	Ticker     string      `gorm:"type:varchar(16);not null" json:"ticker"`
	Side       Action      `gorm:"type:varchar(8);not null" json:"side"`
	Shares     int         `gorm:"not null" json:"shares"`
	Leverage   int         `json:"leverage"`
	FillPrice  float64     `json:"fill_price"`
	TotalValue float64     `json:"total_value"`
	Status     TradeStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	CashBefore float64     `json:"cash_before"`
	CashAfter  float64     `json:"cash_after"`
	OrderID    string      `gorm:"type:varchar(64)" json:"order_id,omitempty"`
	Reason     string      `gorm:"type:text" json:"reason,omitempty"` // broker rejection detail
	// trade rows are stamped with the run's simulated clock, so the ORM
	// must not overwrite them on save
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// DecisionRecord is an append-only log of every decision attempt,
// including failed parses, linked to a Trade when one resulted.
type DecisionRecord struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RunID       string    `gorm:"index;type:varchar(36)" json:"run_id,omitempty"`
	AgentID     string    `gorm:"index;type:varchar(36);not null" json:"agent_id"`
	Attempt     int       `json:"attempt"`
	Action      Action    `gorm:"type:varchar(8)" json:"action"`
	Ticker      string    `gorm:"type:varchar(16)" json:"ticker,omitempty"`
	Shares      int       `json:"shares,omitempty"`
	Reasoning   string    `gorm:"type:text" json:"reasoning"`
	RawResponse string    `gorm:"type:text" json:"raw_response"`
	ParseOK     bool      `json:"parse_ok"`
	TradeID     string    `gorm:"type:varchar(36)" json:"trade_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValuationSnapshot is a point-in-time mark of a ledger, written once
// per agent per processed cycle.
type ValuationSnapshot struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AgentID        string    `gorm:"index;type:varchar(36);not null" json:"agent_id"`
	RunID          string    `gorm:"index;type:varchar(36)" json:"run_id,omitempty"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
	ReturnPct      float64   `json:"return_pct"`
	At             time.Time `gorm:"index" json:"at"`
}

// Run is one multi-day competition across all active agents.
type Run struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	IntervalMinutes int        `json:"interval_minutes"`
	Status          RunStatus  `gorm:"type:varchar(16);index;not null" json:"status"`
	TradingDays     int        `json:"trading_days"`
	TotalTrades     int        `json:"total_trades"`
	FailureReason   string     `gorm:"type:text" json:"failure_reason,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the run has reached a final status.
func (r Run) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// RunAgentResult is the per-agent outcome row for a run, upserted after
// every trading day so partial results survive a later failure. Rank is
// zero until assigned at normal completion.
type RunAgentResult struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RunID          string    `gorm:"index:idx_run_agent,unique;type:varchar(36);not null" json:"run_id"`
	AgentID        string    `gorm:"index:idx_run_agent,unique;type:varchar(36);not null" json:"agent_id"`
	FinalCash      float64   `json:"final_cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
	ReturnPct      float64   `json:"return_pct"`
	Rank           int       `json:"rank"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunSnapshot is the append-only per-agent, per-day valuation row.
type RunSnapshot struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RunID      string    `gorm:"index;type:varchar(36);not null" json:"run_id"`
	AgentID    string    `gorm:"index;type:varchar(36);not null" json:"agent_id"`
	Date       string    `gorm:"type:varchar(10);not null" json:"date"` // YYYY-MM-DD
	Cash       float64   `json:"cash"`
	TotalValue float64   `json:"total_value"`
	ReturnPct  float64   `json:"return_pct"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuoteRecord is the last known persisted price for a ticker, the final
// link in the price resolution chain.
type QuoteRecord struct {
	Ticker    string    `gorm:"primaryKey;type:varchar(16)" json:"ticker"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}
