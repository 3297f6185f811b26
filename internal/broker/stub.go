package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// StubGateway fills at the reference price exactly, with per-ticker
// scripted rejections and errors for tests.
type StubGateway struct {
	mu          sync.Mutex
	reject      map[string]string // ticker -> rejection reason
	failTickers map[string]error  // ticker -> transport error
	submitted   []OrderRequest
}

func NewStubGateway() *StubGateway {
	return &StubGateway{
		reject:      map[string]string{},
		failTickers: map[string]error{},
	}
}

// RejectTicker makes orders for ticker come back REJECTED.
func (g *StubGateway) RejectTicker(ticker, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reject[ticker] = reason
}

// FailTicker makes orders for ticker error at the transport level.
func (g *StubGateway) FailTicker(ticker string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failTickers[ticker] = err
}

// Submitted returns the orders seen so far.
func (g *StubGateway) Submitted() []OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]OrderRequest, len(g.submitted))
	copy(out, g.submitted)
	return out
}

func (g *StubGateway) SubmitOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, req)

	if err, ok := g.failTickers[req.Ticker]; ok {
		return OrderResult{}, &GatewayError{Ticker: req.Ticker, Message: "submit failed", Cause: err}
	}
	if reason, ok := g.reject[req.Ticker]; ok {
		return OrderResult{OrderID: uuid.NewString(), Status: StatusRejected, Reason: reason}, nil
	}
	return OrderResult{OrderID: uuid.NewString(), Status: StatusComplete, FillPrice: req.RefPrice}, nil
}
