package market

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes, 5); got != 3 {
		t.Errorf("SMA(5) = %v, want 3", got)
	}
	if got := SMA(closes, 2); got != 4.5 {
		t.Errorf("SMA(2) = %v, want 4.5", got)
	}
	if got := SMA(closes, 10); got != 0 {
		t.Errorf("SMA over short series = %v, want 0", got)
	}
	if got := SMA(closes, 0); got != 0 {
		t.Errorf("SMA(0) = %v, want 0", got)
	}
}

func TestEMA(t *testing.T) {
	// Constant series: EMA equals the constant.
	closes := []float64{10, 10, 10, 10, 10, 10}
	if got := EMA(closes, 3); math.Abs(got-10) > 1e-9 {
		t.Errorf("EMA on constant series = %v, want 10", got)
	}

	// Rising series: EMA must sit between SMA seed and the last close.
	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	ema := EMA(rising, 3)
	if ema <= SMA(rising[:3], 3) || ema >= 8 {
		t.Errorf("EMA on rising series = %v, want between seed and last close", ema)
	}
}

func TestRSI(t *testing.T) {
	// Monotonically rising: RSI pegs at 100.
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(i + 1)
	}
	if got := RSI(rising, 14); got != 100 {
		t.Errorf("RSI on rising series = %v, want 100", got)
	}

	// Monotonically falling: RSI is 0.
	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	if got := RSI(falling, 14); math.Abs(got) > 1e-9 {
		t.Errorf("RSI on falling series = %v, want 0", got)
	}

	if got := RSI(rising[:5], 14); got != 0 {
		t.Errorf("RSI over short series = %v, want 0", got)
	}
}

func TestSummarize(t *testing.T) {
	candles := make([]Candle, 60)
	day := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		c := 100 + float64(i%9-4)
		candles[i] = Candle{Date: day.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}

	text := Summarize("AAPL", candles, []string{MetricSMA, MetricEMA, MetricRSI})
	for _, want := range []string{"AAPL analysis (60 days)", "SMA(20)=", "EMA(12)=", "RSI(14)=", "last close="} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestSummarizeEmptyHistory(t *testing.T) {
	text := Summarize("AAPL", nil, []string{MetricSMA})
	if !strings.Contains(text, "no history available") {
		t.Errorf("summary = %q", text)
	}
}
