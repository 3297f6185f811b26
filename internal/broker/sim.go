package broker

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
)

// SimGateway fills every well-formed order at the reference price plus
// deterministic-seedable slippage. BUYs fill above the reference, SELLs
// below, within the configured bps band.
type SimGateway struct {
	slippageBpsMin int
	slippageBpsMax int
	rng            *rand.Rand
}

func NewSimGateway(slippageBpsMin, slippageBpsMax int, seed int64) *SimGateway {
	if slippageBpsMax < slippageBpsMin {
		slippageBpsMax = slippageBpsMin
	}
	return &SimGateway{
		slippageBpsMin: slippageBpsMin,
		slippageBpsMax: slippageBpsMax,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

func (g *SimGateway) SubmitOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	if req.Shares <= 0 || req.RefPrice <= 0 {
		return OrderResult{
			OrderID: uuid.NewString(),
			Status:  StatusRejected,
			Reason:  "malformed order",
		}, nil
	}

	bps := g.slippageBpsMin
	if span := g.slippageBpsMax - g.slippageBpsMin; span > 0 {
		bps += g.rng.Intn(span + 1)
	}
	slip := req.RefPrice * float64(bps) / 10000
	price := req.RefPrice
	switch req.Side {
	case "BUY":
		price += slip
	case "SELL":
		price -= slip
	}

	return OrderResult{
		OrderID:   uuid.NewString(),
		Status:    StatusComplete,
		FillPrice: price,
	}, nil
}
