// Package events is the progress publish channel for runs and cycles.
// Publishing is fire-and-forget: a slow or disconnected consumer must
// never block the orchestration pipeline.
package events

import (
	"sync"
	"time"

	"github.com/tradearena/agent-arena/internal/observ"
)

// Event types emitted by the run orchestrator and cycle.
const (
	TypeRunStarted   = "run_started"
	TypeCycleStarted = "cycle_started"
	TypeTrade        = "trade"
	TypePortfolio    = "portfolio" // HOLD outcome
	TypeEODSummary   = "eod_summary"
	TypeRunComplete  = "run_complete"
	TypeError        = "error"
)

type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type Sink interface {
	Publish(eventType string, payload any)
}

// LogSink writes every event as a structured log line.
type LogSink struct{}

func (LogSink) Publish(eventType string, payload any) {
	observ.Log("arena_event", map[string]any{"type": eventType, "payload": payload})
}

// MemorySink records events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(eventType string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Type: eventType, At: time.Now().UTC(), Payload: payload})
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns just the event type sequence, in publish order.
func (s *MemorySink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// Multi fans one publish out to several sinks.
type Multi []Sink

func (m Multi) Publish(eventType string, payload any) {
	for _, s := range m {
		s.Publish(eventType, payload)
	}
}
