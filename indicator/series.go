package indicator

import (
	"fmt"
	"sort"

	"github.com/evdnx/spotbot/types"
)

// PriceSeries is the candle history of one symbol/interval, held
// newest-first: index 0 is the current candle. Venues disagree on feed
// order, so NewPriceSeries sorts by open time instead of trusting it.
type PriceSeries struct {
	symbol   string
	interval string
	candles  []types.Candle
}

// NewPriceSeries copies and orders the candles. Two candles with the same
// open time are rejected.
func NewPriceSeries(symbol, interval string, candles []types.Candle) (*PriceSeries, error) {
	out := make([]types.Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.After(out[j].OpenTime) })
	for i := 1; i < len(out); i++ {
		if !out[i-1].OpenTime.After(out[i].OpenTime) {
			return nil, fmt.Errorf("%w: %s at %s", types.ErrNonMonotonicSeries, symbol, out[i].OpenTime)
		}
	}
	return &PriceSeries{symbol: symbol, interval: interval, candles: out}, nil
}

func (s *PriceSeries) Symbol() string   { return s.symbol }
func (s *PriceSeries) Interval() string { return s.interval }
func (s *PriceSeries) Len() int         { return len(s.candles) }

// Candles returns a copy, newest-first.
func (s *PriceSeries) Candles() []types.Candle {
	out := make([]types.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Current is the most recent candle. It panics on an empty series, like
// indexing would.
func (s *PriceSeries) Current() types.Candle { return s.candles[0] }

// Closes returns closing prices, newest-first.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Volumes returns volumes, newest-first.
func (s *PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Volume
	}
	return out
}

// LowestClose is the minimum close over the newest n candles.
func (s *PriceSeries) LowestClose(n int) (float64, error) {
	if err := requireHistory(len(s.candles), n, "lowest close"); err != nil {
		return 0, err
	}
	low := s.candles[0].Close
	for _, c := range s.candles[1:n] {
		if c.Close < low {
			low = c.Close
		}
	}
	return low, nil
}

func requireHistory(have, need int, what string) error {
	if need <= 0 {
		return fmt.Errorf("%w: %s period must be positive, got %d", types.ErrInsufficientHistory, what, need)
	}
	if have < need {
		return fmt.Errorf("%w: %s needs %d values, have %d", types.ErrInsufficientHistory, what, need, have)
	}
	return nil
}
