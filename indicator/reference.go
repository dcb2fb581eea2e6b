package indicator

import (
	"fmt"

	"github.com/evdnx/goti"
)

// Reference carries oscillator readings from the goti suite. They are logged
// beside the engine's own values for audit and never feed a decision.
type Reference struct {
	RSI        float64
	MFI        float64
	HMABullish bool
}

// ReferenceOscillators replays the series oldest-first through a fresh goti
// suite and reads its RSI, MFI and HMA crossover state.
func ReferenceOscillators(s *PriceSeries) (Reference, error) {
	suite, err := goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
	if err != nil {
		return Reference{}, fmt.Errorf("goti suite: %w", err)
	}
	for i := len(s.candles) - 1; i >= 0; i-- {
		c := s.candles[i]
		if err := suite.Add(c.High, c.Low, c.Close, c.Volume); err != nil {
			return Reference{}, fmt.Errorf("goti add: %w", err)
		}
	}

	var ref Reference
	if ref.RSI, err = suite.GetRSI().Calculate(); err != nil {
		return Reference{}, fmt.Errorf("goti rsi: %w", err)
	}
	if ref.MFI, err = suite.GetMFI().Calculate(); err != nil {
		return Reference{}, fmt.Errorf("goti mfi: %w", err)
	}
	// A crossover error only means too few bars for the HMA.
	ref.HMABullish, _ = suite.GetHMA().IsBullishCrossover()
	return ref, nil
}
