// Package llm wraps the decision provider: given a serialized context,
// return raw agent output text. Call mechanics live here; prompt content
// and parsing belong to the decision engine.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// Provider is the external decision source.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderError classifies provider failures.
type ProviderError struct {
	Type    string // "network", "rate_limit", "provider_error", "empty"
	Message string
	Cause   error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s: %s", e.Type, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// StubProvider replays scripted responses in order, repeating the last
// one when the script runs out. Deterministic by construction; used by
// backtests and tests.
type StubProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	served    int
}

func NewStubProvider(responses ...string) *StubProvider {
	return &StubProvider{responses: responses}
}

// PushError queues an error to be returned before the remaining
// scripted responses.
func (s *StubProvider) PushError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Calls reports how many times Complete has been invoked.
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubProvider) Complete(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	if len(s.responses) == 0 {
		return "", &ProviderError{Type: "empty", Message: "no scripted response"}
	}
	i := s.served
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.served++
	return s.responses[i], nil
}
