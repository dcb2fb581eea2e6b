package testutils

import (
	"time"

	"github.com/evdnx/spotbot/types"
)

// Epoch is the open time of the oldest candle built by the helpers below.
var Epoch = time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)

// Bar describes a candle for CandlesFromBars.
type Bar struct {
	High, Low, Close, Volume float64
}

// CandlesFromBars builds 5-minute candles oldest-first. The venue sends them
// newest-first; use Reverse for that.
func CandlesFromBars(bars []Bar) []types.Candle {
	out := make([]types.Candle, len(bars))
	for i, b := range bars {
		out[i] = types.Candle{
			OpenTime: Epoch.Add(time.Duration(i) * 5 * time.Minute),
			Open:     b.Close,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}
	return out
}

// FlatCandles returns n identical candles at price with zero range.
func FlatCandles(n int, price, volume float64) []types.Candle {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{High: price, Low: price, Close: price, Volume: volume}
	}
	return CandlesFromBars(bars)
}

// TrendCandles returns n candles whose close moves by step per candle,
// oldest-first, with a +-spread range.
func TrendCandles(n int, start, step, spread, volume float64) []types.Candle {
	bars := make([]Bar, n)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = Bar{High: c + spread, Low: c - spread, Close: c, Volume: volume}
	}
	return CandlesFromBars(bars)
}

// Reverse returns a reversed copy.
func Reverse(cs []types.Candle) []types.Candle {
	out := make([]types.Candle, len(cs))
	for i, c := range cs {
		out[len(cs)-1-i] = c
	}
	return out
}
