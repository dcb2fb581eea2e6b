package indicator

import (
	"errors"

	"github.com/evdnx/spotbot/config"
)

var errMismatched = errors.New("indicator: high/low/close lengths differ")

// Periods selects the lookbacks used by Compute.
type Periods struct {
	FastEMA int
	SlowEMA int
	RSI     int
	ATR     int
	Volume  int
}

// PeriodsFrom extracts the indicator lookbacks from a strategy config.
func PeriodsFrom(cfg config.StrategyConfig) Periods {
	return Periods{
		FastEMA: cfg.FastEMAPeriod,
		SlowEMA: cfg.SlowEMAPeriod,
		RSI:     cfg.RSIPeriod,
		ATR:     cfg.ATRPeriod,
		Volume:  cfg.VolumePeriod,
	}
}

// Snapshot holds one evaluation's indicator output. The slices are aligned
// with the newest-first series they were computed from.
type Snapshot struct {
	EMAFast   []float64
	EMASlow   []float64
	RSI       []float64
	ATR       float64
	AvgVolume float64
}

// Compute runs every indicator over the series.
func Compute(s *PriceSeries, p Periods) (Snapshot, error) {
	closes := s.Closes()
	fast, err := EMA(closes, p.FastEMA)
	if err != nil {
		return Snapshot{}, err
	}
	slow, err := EMA(closes, p.SlowEMA)
	if err != nil {
		return Snapshot{}, err
	}
	rsi, err := RSI(closes, p.RSI)
	if err != nil {
		return Snapshot{}, err
	}

	candles := s.candles
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}
	atr, err := ATR(highs, lows, closes, p.ATR)
	if err != nil {
		return Snapshot{}, err
	}
	avgVol, err := AverageVolume(s.Volumes(), p.Volume)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{EMAFast: fast, EMASlow: slow, RSI: rsi, ATR: atr, AvgVolume: avgVol}, nil
}

// TrendDown reports whether the fast EMA is below the slow EMA on the
// newest candle of the series.
func TrendDown(s *PriceSeries, fastPeriod, slowPeriod int) (bool, float64, float64, error) {
	closes := s.Closes()
	fast, err := EMA(closes, fastPeriod)
	if err != nil {
		return false, 0, 0, err
	}
	slow, err := EMA(closes, slowPeriod)
	if err != nil {
		return false, 0, 0, err
	}
	return fast[0] < slow[0], fast[0], slow[0], nil
}
