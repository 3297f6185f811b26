package decision

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tradearena/agent-arena/internal/domain"
)

// Kind tags the parse result so the engine can branch without
// exceptions-as-control-flow.
type Kind int

const (
	KindDecision Kind = iota
	KindAnalysis
	KindFailure
)

// AnalysisRequest is an agent asking for computed indicators before
// committing to a decision (the tool-use round trip).
type AnalysisRequest struct {
	Tickers []string `json:"tickers"`
	Metrics []string `json:"metrics"`
}

// Parsed is the typed outcome of one provider response.
type Parsed struct {
	Kind     Kind
	Decision domain.Decision
	Analysis AnalysisRequest
	Err      string
}

type rawResponse struct {
	Action          string           `json:"action"`
	Ticker          string           `json:"ticker"`
	Shares          int              `json:"shares"`
	Leverage        int              `json:"leverage"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning"`
	RequestAnalysis *AnalysisRequest `json:"request_analysis"`
}

// Parse extracts the structured decision or analysis request from raw
// provider output. Providers wrap JSON in prose and code fences often
// enough that we cut from the first '{' to the last '}'.
func Parse(text string) Parsed {
	body := extractJSON(text)
	if body == "" {
		return Parsed{Kind: KindFailure, Err: "no JSON object in response"}
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Parsed{Kind: KindFailure, Err: "unmarshal: " + err.Error()}
	}

	if raw.RequestAnalysis != nil {
		if len(raw.RequestAnalysis.Tickers) == 0 {
			return Parsed{Kind: KindFailure, Err: "analysis request without tickers"}
		}
		return Parsed{Kind: KindAnalysis, Analysis: *raw.RequestAnalysis}
	}

	action := domain.Action(strings.ToUpper(strings.TrimSpace(raw.Action)))
	switch action {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold:
	default:
		return Parsed{Kind: KindFailure, Err: "unknown action " + strconv.Quote(raw.Action)}
	}

	dec := domain.Decision{
		Action:     action,
		Ticker:     strings.ToUpper(strings.TrimSpace(raw.Ticker)),
		Shares:     raw.Shares,
		Leverage:   raw.Leverage,
		Confidence: raw.Confidence,
		Reasoning:  raw.Reasoning,
	}
	if dec.Action == domain.ActionBuy && dec.Leverage == 0 {
		dec.Leverage = 1
	}
	return Parsed{Kind: KindDecision, Decision: dec}
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// ParseLegacy handles the older key:value line format some providers
// drift back to. Last resort after the JSON parse fails.
//
//	ACTION: BUY
//	TICKER: RELIANCE
//	SHARES: 10
func ParseLegacy(text string) Parsed {
	fields := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	action := domain.Action(strings.ToUpper(fields["ACTION"]))
	switch action {
	case domain.ActionBuy, domain.ActionSell:
	case domain.ActionHold:
		return Parsed{Kind: KindDecision, Decision: domain.Hold(fields["REASON"])}
	default:
		return Parsed{Kind: KindFailure, Err: "legacy: no ACTION line"}
	}

	shares, err := strconv.Atoi(fields["SHARES"])
	if err != nil {
		return Parsed{Kind: KindFailure, Err: "legacy: bad SHARES"}
	}
	leverage := 1
	if lv, err := strconv.Atoi(fields["LEVERAGE"]); err == nil && lv > 0 {
		leverage = lv
	}

	return Parsed{Kind: KindDecision, Decision: domain.Decision{
		Action:    action,
		Ticker:    strings.ToUpper(fields["TICKER"]),
		Shares:    shares,
		Leverage:  leverage,
		Reasoning: fields["REASON"],
	}}
}
