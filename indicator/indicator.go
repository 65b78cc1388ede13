// Package indicator converts a raw daily price series into the derived series
// the turtle rules run on: true range / ATR ("N"), Donchian breakout channels
// and volume-surge flags.
//
// Warm-up policy: every rolling statistic is absent (nil) until its window is
// completely filled — partial windows are never averaged. Bar 0 carries no
// true range (no previous close), so ATR over window w first appears at index
// w. The rolling mean volume excludes the current bar, the stricter surge
// definition.
package indicator

import (
	"math"

	"github.com/evdnx/goturtle/types"
)

// Windows bundles the rolling-window lengths for one computation pass.
type Windows struct {
	ATR    int
	Entry  int // Donchian upper
	Exit   int // Donchian lower
	Volume int
}

// Frame holds the derived statistics for one bar, aligned 1:1 with the input
// series. Nil means "not yet available", never zero.
type Frame struct {
	TR            *float64
	ATR           *float64
	DonchianUpper *float64 // trailing max high, current bar included
	DonchianLower *float64 // trailing min low, current bar included
	PrevUpper     *float64 // upper channel shifted one bar forward
	PrevLower     *float64 // lower channel shifted one bar forward
	AvgVolume     *float64 // mean volume over the trailing window, current bar excluded
	VolumeRatio   *float64 // current volume / AvgVolume
	VolumeSurge   bool
}

// Compute derives a Frame per input bar. surgeRatio is the volume multiple
// above the rolling mean that flags a surge (canonically 1.5).
//
// Entry/exit comparisons must use PrevUpper/PrevLower: a breakout bar is
// never compared against a channel that already contains its own extreme.
func Compute(bars []types.PriceBar, w Windows, surgeRatio float64) []Frame {
	frames := make([]Frame, len(bars))
	if len(bars) == 0 {
		return frames
	}

	// True range. TR[0] stays nil: no previous close exists.
	for i := 1; i < len(bars); i++ {
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-bars[i-1].Close),
				math.Abs(bars[i].Low-bars[i-1].Close)))
		frames[i].TR = ptr(tr)
	}

	// ATR: simple moving average of TR over the trailing window, current bar
	// included. First complete window ends at index w.ATR.
	if w.ATR > 0 {
		var sum float64
		for i := 1; i < len(bars); i++ {
			sum += *frames[i].TR
			if i > w.ATR {
				sum -= *frames[i-w.ATR].TR
			}
			if i >= w.ATR {
				frames[i].ATR = ptr(sum / float64(w.ATR))
			}
		}
	}

	// Donchian channels, look-back only.
	for i := range bars {
		if w.Entry > 0 && i >= w.Entry-1 {
			frames[i].DonchianUpper = ptr(maxHigh(bars[i-w.Entry+1 : i+1]))
		}
		if w.Exit > 0 && i >= w.Exit-1 {
			frames[i].DonchianLower = ptr(minLow(bars[i-w.Exit+1 : i+1]))
		}
		if i > 0 {
			frames[i].PrevUpper = frames[i-1].DonchianUpper
			frames[i].PrevLower = frames[i-1].DonchianLower
		}
	}

	// Rolling mean volume over the w.Volume bars before the current one.
	if w.Volume > 0 {
		var sum float64
		for i := range bars {
			if i >= w.Volume {
				avg := sum / float64(w.Volume)
				frames[i].AvgVolume = ptr(avg)
				if avg > 0 {
					ratio := float64(bars[i].Volume) / avg
					frames[i].VolumeRatio = ptr(ratio)
					frames[i].VolumeSurge = ratio > surgeRatio
				}
			}
			sum += float64(bars[i].Volume)
			if i >= w.Volume {
				sum -= float64(bars[i-w.Volume].Volume)
			}
		}
	}

	return frames
}

func maxHigh(bars []types.PriceBar) float64 {
	m := bars[0].High
	for _, b := range bars[1:] {
		if b.High > m {
			m = b.High
		}
	}
	return m
}

func minLow(bars []types.PriceBar) float64 {
	m := bars[0].Low
	for _, b := range bars[1:] {
		if b.Low < m {
			m = b.Low
		}
	}
	return m
}

func ptr(v float64) *float64 { return &v }
