package domain

import "fmt"

// Decision is a parsed, not-yet-validated trading intent produced by the
// decision engine for one agent in one cycle.
type Decision struct {
	Action     Action  `json:"action"`
	Ticker     string  `json:"ticker,omitempty"`
	Shares     int     `json:"shares,omitempty"`
	Leverage   int     `json:"leverage,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Hold builds a HOLD decision carrying the given reasoning.
func Hold(reason string) Decision {
	return Decision{Action: ActionHold, Reasoning: reason}
}

// Notional is the gross value of the decision at the given price.
func (d Decision) Notional(price float64) float64 {
	return float64(d.Shares) * price
}

func (d Decision) String() string {
	if d.Action == ActionHold {
		return "HOLD"
	}
	return fmt.Sprintf("%s %d %s", d.Action, d.Shares, d.Ticker)
}
