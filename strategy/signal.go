package strategy

import (
	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/indicator"
	"github.com/evdnx/spotbot/logger"
)

// EntryInputs is everything the entry rule looks at.
type EntryInputs struct {
	Snapshot indicator.Snapshot
	Price    float64 // close of the current candle
	Volume   float64 // volume of the current candle
	LocalLow float64 // lowest close over the local-low window
}

// InputsFrom reads the current candle and the local low off the series.
func InputsFrom(s *indicator.PriceSeries, snap indicator.Snapshot, cfg config.StrategyConfig) (EntryInputs, error) {
	low, err := s.LowestClose(cfg.LocalLowWindow)
	if err != nil {
		return EntryInputs{}, err
	}
	cur := s.Current()
	return EntryInputs{Snapshot: snap, Price: cur.Close, Volume: cur.Volume, LocalLow: low}, nil
}

// EntrySignal is the long-entry decision together with the values that
// produced it. Enter is true only when every condition holds.
type EntrySignal struct {
	Enter bool

	TrendUp       bool // fast EMA above slow EMA
	RSIInBand     bool // RSI strictly inside (lower, upper)
	Volatile      bool // ATR above the volatility floor
	VolumeAbove   bool // current volume above the average
	AboveLocalLow bool // price above the recent low

	EMAFast   float64
	EMASlow   float64
	RSI       float64
	ATR       float64
	AvgVolume float64
	Price     float64
	Volume    float64
	LocalLow  float64
}

// Evaluate applies the entry rule. It is a pure function of its inputs.
// There is no short entry.
func Evaluate(in EntryInputs, cfg config.StrategyConfig) EntrySignal {
	snap := in.Snapshot
	sig := EntrySignal{
		EMAFast:   first(snap.EMAFast),
		EMASlow:   first(snap.EMASlow),
		RSI:       first(snap.RSI),
		ATR:       snap.ATR,
		AvgVolume: snap.AvgVolume,
		Price:     in.Price,
		Volume:    in.Volume,
		LocalLow:  in.LocalLow,
	}
	sig.TrendUp = sig.EMAFast > sig.EMASlow
	sig.RSIInBand = sig.RSI > cfg.RSILower && sig.RSI < cfg.RSIUpper
	sig.Volatile = sig.ATR > cfg.MinVolatilityRatio*in.Price
	sig.VolumeAbove = in.Volume > snap.AvgVolume
	sig.AboveLocalLow = in.Price > in.LocalLow
	sig.Enter = sig.TrendUp && sig.RSIInBand && sig.Volatile && sig.VolumeAbove && sig.AboveLocalLow
	return sig
}

// Fields renders the signal for the market_analysis log line.
func (s EntrySignal) Fields() []logger.Field {
	return []logger.Field{
		logger.Float64("price", s.Price),
		logger.Float64("ema_fast", s.EMAFast),
		logger.Float64("ema_slow", s.EMASlow),
		logger.Float64("rsi", s.RSI),
		logger.Float64("atr", s.ATR),
		logger.Float64("volume", s.Volume),
		logger.Float64("avg_volume", s.AvgVolume),
		logger.Float64("local_low", s.LocalLow),
		logger.Bool("trend_up", s.TrendUp),
		logger.Bool("rsi_in_band", s.RSIInBand),
		logger.Bool("volatile", s.Volatile),
		logger.Bool("volume_above", s.VolumeAbove),
		logger.Bool("above_local_low", s.AboveLocalLow),
		logger.Bool("enter", s.Enter),
	}
}

func first(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[0]
}
