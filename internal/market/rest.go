package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestFeed fetches quotes and daily candles from a JSON quote API.
type RestFeed struct {
	client *resty.Client
}

func NewRestFeed(baseURL string, timeout time.Duration) *RestFeed {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	return &RestFeed{client: client}
}

type restQuote struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
}

type restQuotesResponse struct {
	Quotes []restQuote `json:"quotes"`
}

func (r *RestFeed) GetQuotes(ctx context.Context, tickers []string) (map[string]Quote, error) {
	var body restQuotesResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("tickers", strings.Join(tickers, ",")).
		SetResult(&body).
		Get("/quotes")
	if err != nil {
		return nil, NewNetworkError("", "fetch quotes", err)
	}
	if resp.IsError() {
		return nil, NewProviderError("", fmt.Sprintf("quote API status %d", resp.StatusCode()), nil)
	}

	out := make(map[string]Quote, len(body.Quotes))
	now := time.Now().UTC()
	for _, q := range body.Quotes {
		out[strings.ToUpper(q.Ticker)] = Quote{
			Ticker:    strings.ToUpper(q.Ticker),
			Price:     q.Price,
			Change:    q.Change,
			ChangePct: q.ChangePct,
			Volume:    q.Volume,
			Timestamp: now,
			Source:    "rest",
		}
	}
	return out, nil
}

type restCandle struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type restHistoryResponse struct {
	Candles []restCandle `json:"candles"`
}

func (r *RestFeed) GetHistory(ctx context.Context, ticker string, days int) ([]Candle, error) {
	var body restHistoryResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("ticker", ticker).
		SetQueryParam("days", fmt.Sprintf("%d", days)).
		SetResult(&body).
		Get("/history")
	if err != nil {
		return nil, NewNetworkError(ticker, "fetch history", err)
	}
	if resp.IsError() {
		return nil, NewProviderError(ticker, fmt.Sprintf("history API status %d", resp.StatusCode()), nil)
	}

	out := make([]Candle, 0, len(body.Candles))
	for _, c := range body.Candles {
		d, err := time.Parse("2006-01-02", c.Date)
		if err != nil {
			continue
		}
		out = append(out, Candle{Date: d, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume})
	}
	return out, nil
}
