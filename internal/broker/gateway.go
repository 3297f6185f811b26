// Package broker is the order submission boundary. The core only cares
// about the call/response contract; real brokerage risk management is
// out of scope.
package broker

import (
	"context"
	"fmt"

	"github.com/tradearena/agent-arena/internal/domain"
)

// Order statuses returned by a gateway.
const (
	StatusComplete = "COMPLETE"
	StatusRejected = "REJECTED"
)

// OrderRequest is one order to submit. RefPrice is the cycle's shared
// snapshot price for the ticker; simulated gateways fill around it.
type OrderRequest struct {
	Ticker   string
	Side     domain.Action
	Shares   int
	RefPrice float64
}

// OrderResult is the gateway's answer. FillPrice is meaningful only
// when Status is COMPLETE.
type OrderResult struct {
	OrderID   string
	Status    string
	FillPrice float64
	Reason    string
}

// Gateway accepts orders and returns fills or rejections.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// GatewayError wraps transport-level submission failures.
type GatewayError struct {
	Ticker  string
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("broker error for %s: %s (%v)", e.Ticker, e.Message, e.Cause)
	}
	return fmt.Sprintf("broker error for %s: %s", e.Ticker, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Cause }
