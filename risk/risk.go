package risk

import (
	"fmt"

	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
)

// Params are the fixed sizing inputs taken from the strategy config.
type Params struct {
	MaxRisk           float64 // fraction of equity put at risk, 0.01 = 1 %
	StopATRMultiple   float64 // stop distance in ATRs
	QuantityPrecision int32   // decimal places of the order quantity
}

// Sizing is the outcome of one sizing decision.
type Sizing struct {
	RiskAmount   float64
	StopDistance float64
	Qty          decimal.Decimal
}

// CalcQty converts risk into a quantity: riskAmount / stopDistance, rounded
// half away from zero to the configured precision.
func CalcQty(equity, atr float64, p Params) Sizing {
	// Dollar risk per trade
	riskAmt := equity * p.MaxRisk
	// Stop-loss distance in quote currency
	slDist := atr * p.StopATRMultiple
	if slDist <= 0 {
		return Sizing{RiskAmount: riskAmt}
	}
	qty := decimal.NewFromFloat(riskAmt / slDist).Round(p.QuantityPrecision)
	return Sizing{RiskAmount: riskAmt, StopDistance: slDist, Qty: qty}
}

// Size sizes an entry against the instrument floor. A quantity under the
// floor fails with types.ErrBelowMinimumOrderSize, which aborts the entry
// only; no order has been placed at that point.
func Size(equity decimal.Decimal, atr float64, c types.InstrumentConstraint, p Params) (Sizing, error) {
	s := CalcQty(equity.InexactFloat64(), atr, p)
	if s.StopDistance <= 0 {
		return s, fmt.Errorf("%w: non-positive stop distance (atr=%v)", types.ErrBelowMinimumOrderSize, atr)
	}
	if s.Qty.LessThan(c.MinOrderQty) || !s.Qty.IsPositive() {
		return s, fmt.Errorf("%w: %s < %s for %s", types.ErrBelowMinimumOrderSize, s.Qty, c.MinOrderQty, c.Symbol)
	}
	return s, nil
}
