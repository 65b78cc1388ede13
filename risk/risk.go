// Package risk sizes positions under the turtle fixed-fractional rule: the
// loss at the 2N stop equals a fixed fraction of account capital.
package risk

import (
	"fmt"
	"math"

	"github.com/evdnx/goturtle/signal"
	"github.com/evdnx/goturtle/types"
)

// Sizing is the outcome of one sizing computation.
type Sizing struct {
	Shares           int
	InvestmentAmount float64
	StopLoss         float64
	PyramidLevels    [3]float64
	MaxLoss          float64 // Shares x (price - StopLoss)
	RiskPercentage   float64 // MaxLoss / capital x 100
}

// SizePosition computes the share quantity for one entry.
//
// ATR is already an absolute price-range quantity; it is never re-scaled by
// price. The stop sits 2xATR below entry, so risking riskFraction of capital
// means shares = floor(capital*riskFraction / (2*atr)), floored and never
// below one share. MaxLoss therefore lands within one share's rounding of
// capital*riskFraction.
func SizePosition(capital, riskFraction, price, atr float64) (Sizing, error) {
	switch {
	case capital <= 0:
		return Sizing{}, fmt.Errorf("size: %w: capital %f", types.ErrInvalidParameter, capital)
	case riskFraction <= 0 || riskFraction > 1:
		return Sizing{}, fmt.Errorf("size: %w: risk fraction %f", types.ErrInvalidParameter, riskFraction)
	case price <= 0:
		return Sizing{}, fmt.Errorf("size: %w: price %f", types.ErrInvalidParameter, price)
	case atr <= 0:
		return Sizing{}, fmt.Errorf("size: %w: atr %f", types.ErrInvalidParameter, atr)
	}

	riskAmount := capital * riskFraction
	stopDist := signal.StopLossATRMultiple * atr

	shares := int(math.Floor(riskAmount / stopDist))
	if shares < 1 {
		shares = 1
	}

	s := Sizing{
		Shares:           shares,
		InvestmentAmount: float64(shares) * price,
		StopLoss:         price - stopDist,
		MaxLoss:          float64(shares) * stopDist,
	}
	for i := range s.PyramidLevels {
		s.PyramidLevels[i] = price + float64(i+1)*signal.AddOnATRStep*atr
	}
	s.RiskPercentage = s.MaxLoss / capital * 100

	return s, nil
}
