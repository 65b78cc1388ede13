// Package signal classifies the latest bar of an indicator series into turtle
// entry/exit signals and the price levels derived from the current ATR.
package signal

import (
	"fmt"

	"github.com/evdnx/goturtle/indicator"
	"github.com/evdnx/goturtle/types"
)

// Stop distance and pyramid increments, in ATR multiples.
const (
	StopLossATRMultiple = 2.0
	AddOnATRStep        = 0.5
)

// Snapshot is the decision output for the latest bar of one instrument. It is
// recomputed fresh on each analysis pass and never outlives the bar it
// describes.
type Snapshot struct {
	Close       float64
	ATR         float64
	Entry       bool // close broke the previous bar's Donchian upper
	Exit        bool // close broke the previous bar's Donchian lower
	VolumeSurge bool
	VolumeRatio float64 // 0 when the volume window has not filled yet

	StopLoss      float64    // close - 2xATR
	PyramidLevels [3]float64 // close + {0.5, 1.0, 1.5}xATR
}

// ClassifyLatest evaluates the last bar of the series. It fails with
// types.ErrDataUnavailable when the ATR window has not filled yet: without a
// volatility estimate the instrument can be neither sized nor evaluated.
//
// Entry and Exit are computed independently; callers decide tie-break
// priority (the position ledger applies stop > profit-exit > add).
func ClassifyLatest(bars []types.PriceBar, frames []indicator.Frame) (Snapshot, error) {
	if len(bars) == 0 || len(bars) != len(frames) {
		return Snapshot{}, fmt.Errorf("classify: %w: empty or misaligned series", types.ErrDataUnavailable)
	}

	last := len(bars) - 1
	f := frames[last]
	if f.ATR == nil {
		return Snapshot{}, fmt.Errorf("classify: %w: ATR window not filled", types.ErrDataUnavailable)
	}

	snap := Snapshot{
		Close:       bars[last].Close,
		ATR:         *f.ATR,
		VolumeSurge: f.VolumeSurge,
	}
	if f.VolumeRatio != nil {
		snap.VolumeRatio = *f.VolumeRatio
	}

	// Breakout tests run against the channel of the previous bar so a
	// breakout bar's own extreme never masks it.
	if f.PrevUpper != nil {
		snap.Entry = snap.Close > *f.PrevUpper
	}
	if f.PrevLower != nil {
		snap.Exit = snap.Close < *f.PrevLower
	}

	snap.StopLoss = snap.Close - StopLossATRMultiple*snap.ATR
	for i := range snap.PyramidLevels {
		snap.PyramidLevels[i] = snap.Close + float64(i+1)*AddOnATRStep*snap.ATR
	}

	return snap, nil
}
