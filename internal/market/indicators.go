package market

import (
	"fmt"
	"math"
	"strings"
)

// Indicator metric kinds an agent may request in a tool-use round trip.
const (
	MetricSMA = "sma"
	MetricEMA = "ema"
	MetricRSI = "rsi"
)

// SMA returns the simple moving average of the last period closes,
// or 0 when the series is too short.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average of the series, seeded with
// the SMA of the first period values.
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	mult := 2.0 / float64(period+1)
	ema := 0.0
	for _, c := range closes[:period] {
		ema += c
	}
	ema /= float64(period)
	for _, c := range closes[period:] {
		ema = (c-ema)*mult + ema
	}
	return ema
}

// RSI returns the Wilder relative strength index over the given period,
// or 0 when the series is too short.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += math.Abs(change)
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Closes extracts the close series from candles.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Summarize renders the requested metrics for one ticker's history into
// a text block suitable for appending to an agent context.
func Summarize(ticker string, candles []Candle, metrics []string) string {
	closes := Closes(candles)
	var b strings.Builder
	fmt.Fprintf(&b, "%s analysis (%d days):\n", ticker, len(closes))
	if len(closes) == 0 {
		b.WriteString("  no history available\n")
		return b.String()
	}
	for _, m := range metrics {
		switch strings.ToLower(m) {
		case MetricSMA:
			fmt.Fprintf(&b, "  SMA(20)=%.2f SMA(50)=%.2f\n", SMA(closes, 20), SMA(closes, 50))
		case MetricEMA:
			fmt.Fprintf(&b, "  EMA(12)=%.2f EMA(26)=%.2f\n", EMA(closes, 12), EMA(closes, 26))
		case MetricRSI:
			fmt.Fprintf(&b, "  RSI(14)=%.1f\n", RSI(closes, 14))
		}
	}
	fmt.Fprintf(&b, "  last close=%.2f\n", closes[len(closes)-1])
	return b.String()
}
