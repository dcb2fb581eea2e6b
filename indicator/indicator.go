// Package indicator computes the EMA, RSI, ATR and average-volume inputs of
// the entry rule. All slices are newest-first: index 0 is the current value.
// Inputs shorter than a requested lookback are a caller error and fail with
// types.ErrInsufficientHistory.
package indicator

import (
	"math"
)

// EMA seeds with the simple mean of the oldest period prices and then runs
// ema = (price - prev) * k + prev forward in time, k = 2/(period+1). The
// result has the same length as prices.
func EMA(prices []float64, period int) ([]float64, error) {
	n := len(prices)
	if err := requireHistory(n, period, "ema"); err != nil {
		return nil, err
	}
	chron := reversed(prices)
	k := 2 / float64(period+1)

	ema := make([]float64, n)
	ema[0] = mean(chron[:period])
	for i := 1; i < n; i++ {
		ema[i] = (chron[i]-ema[i-1])*k + ema[i-1]
	}
	return reversed(ema), nil
}

// RSI averages gains and losses over a trailing window of period steps.
// Step j compares prices[j] with the next-older prices[j+1]: a newer price
// above the older one is a gain. RS is taken as 100 when there are no
// losses in the window. Positions without a full window (the oldest ones)
// are zero.
func RSI(prices []float64, period int) ([]float64, error) {
	n := len(prices)
	if err := requireHistory(n, period+1, "rsi"); err != nil {
		return nil, err
	}
	steps := n - 1
	gains := make([]float64, steps)
	losses := make([]float64, steps)
	for j := 0; j < steps; j++ {
		diff := prices[j] - prices[j+1]
		if diff > 0 {
			gains[j] = diff
		} else {
			losses[j] = -diff
		}
	}

	rsi := make([]float64, n)
	for k := 0; k+period <= steps; k++ {
		avgGain := mean(gains[k : k+period])
		avgLoss := mean(losses[k : k+period])
		rs := 100.0
		if avgLoss != 0 {
			rs = avgGain / avgLoss
		}
		rsi[k] = 100 - 100/(1+rs)
	}
	return rsi, nil
}

// TrueRange of a candle against the close of the candle before it.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR is the simple mean of the newest period true ranges. Each candle is
// measured against the next-older close, so the oldest candle only supplies
// a close.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return 0, errMismatched
	}
	if err := requireHistory(n-1, period, "atr"); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += TrueRange(highs[i], lows[i], closes[i+1])
	}
	return sum / float64(period), nil
}

// AverageVolume is the simple mean of the newest window volumes.
func AverageVolume(volumes []float64, window int) (float64, error) {
	if err := requireHistory(len(volumes), window, "average volume"); err != nil {
		return 0, err
	}
	return mean(volumes[:window]), nil
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func reversed(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}
