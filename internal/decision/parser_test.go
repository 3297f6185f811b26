package decision

import (
	"testing"

	"github.com/tradearena/agent-arena/internal/domain"
)

func TestParseCleanJSON(t *testing.T) {
	p := Parse(`{"action":"BUY","ticker":"AAPL","shares":10,"leverage":5,"confidence":0.8,"reasoning":"momentum"}`)
	if p.Kind != KindDecision {
		t.Fatalf("Kind = %v, want decision (err: %s)", p.Kind, p.Err)
	}
	d := p.Decision
	if d.Action != domain.ActionBuy || d.Ticker != "AAPL" || d.Shares != 10 || d.Leverage != 5 {
		t.Fatalf("decision = %+v", d)
	}
	if d.Confidence != 0.8 || d.Reasoning != "momentum" {
		t.Errorf("confidence/reasoning = %v / %q", d.Confidence, d.Reasoning)
	}
}

func TestParseFencedAndProse(t *testing.T) {
	text := "I think AAPL looks strong today.\n```json\n" +
		`{"action":"buy","ticker":"aapl","shares":3}` +
		"\n```\nGood luck!"
	p := Parse(text)
	if p.Kind != KindDecision {
		t.Fatalf("Kind = %v, want decision (err: %s)", p.Kind, p.Err)
	}
	if p.Decision.Action != domain.ActionBuy || p.Decision.Ticker != "AAPL" {
		t.Fatalf("decision = %+v, want normalized BUY AAPL", p.Decision)
	}
	if p.Decision.Leverage != 1 {
		t.Errorf("leverage = %d, want default 1 on BUY", p.Decision.Leverage)
	}
}

func TestParseAnalysisRequest(t *testing.T) {
	p := Parse(`{"request_analysis":{"tickers":["AAPL","NVDA"],"metrics":["sma","rsi"]}}`)
	if p.Kind != KindAnalysis {
		t.Fatalf("Kind = %v, want analysis (err: %s)", p.Kind, p.Err)
	}
	if len(p.Analysis.Tickers) != 2 || len(p.Analysis.Metrics) != 2 {
		t.Fatalf("analysis = %+v", p.Analysis)
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no json", "I would like to buy some AAPL please"},
		{"broken json", `{"action":"BUY","ticker":`},
		{"unknown action", `{"action":"SHORT","ticker":"AAPL","shares":1}`},
		{"analysis without tickers", `{"request_analysis":{"metrics":["sma"]}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Parse(tc.text)
			if p.Kind != KindFailure {
				t.Fatalf("Kind = %v, want failure", p.Kind)
			}
			if p.Err == "" {
				t.Errorf("failure without error text")
			}
		})
	}
}

func TestParseLegacyFormat(t *testing.T) {
	p := ParseLegacy("ACTION: BUY\nTICKER: RELIANCE\nSHARES: 10\nLEVERAGE: 5\nREASON: breakout")
	if p.Kind != KindDecision {
		t.Fatalf("Kind = %v, want decision (err: %s)", p.Kind, p.Err)
	}
	want := domain.Decision{Action: domain.ActionBuy, Ticker: "RELIANCE", Shares: 10, Leverage: 5, Reasoning: "breakout"}
	if p.Decision != want {
		t.Fatalf("decision = %+v, want %+v", p.Decision, want)
	}
}

func TestParseLegacyHold(t *testing.T) {
	p := ParseLegacy("ACTION: HOLD\nREASON: nothing attractive")
	if p.Kind != KindDecision || p.Decision.Action != domain.ActionHold {
		t.Fatalf("parsed = %+v", p)
	}
}

func TestParseLegacyMissingShares(t *testing.T) {
	p := ParseLegacy("ACTION: BUY\nTICKER: AAPL")
	if p.Kind != KindFailure {
		t.Fatalf("Kind = %v, want failure", p.Kind)
	}
}
