// Turtle trend-following scanner. One analysis pass per watchlist:
//
//   - pull daily bars for each instrument from the market-data provider,
//   - derive ATR / Donchian channels / volume surge (indicator package),
//   - classify the latest bar into entry/exit signals (signal package),
//   - attach a recommended sizing under the fixed-fractional rule (risk
//     package) and a GoTI momentum-confirmation flag.
//
// Failures stay per-instrument: one empty or short history never aborts the
// rest of the pass.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/goti"

	"github.com/evdnx/goturtle/config"
	"github.com/evdnx/goturtle/indicator"
	"github.com/evdnx/goturtle/logger"
	"github.com/evdnx/goturtle/marketdata"
	"github.com/evdnx/goturtle/metrics"
	"github.com/evdnx/goturtle/position"
	"github.com/evdnx/goturtle/risk"
	"github.com/evdnx/goturtle/signal"
	"github.com/evdnx/goturtle/types"
)

// Scanner runs turtle analysis passes over a watchlist. It holds no mutable
// state of its own; recomputation is explicit and idempotent.
type Scanner struct {
	cfg      config.Config
	provider marketdata.Provider
	log      logger.Logger
}

// Result is the outcome for one instrument of a pass. When Err is set the
// remaining fields are zero.
type Result struct {
	Instrument string
	Name       string
	Snapshot   signal.Snapshot
	// Sizing is the recommended position under the configured capital and
	// risk fraction, present whenever the snapshot is available.
	Sizing risk.Sizing
	// MomentumConfirmed reports whether the GoTI suite saw a bullish HMA or
	// VWAO crossover on the same data. Advisory only; it never gates the
	// breakout signal itself.
	MomentumConfirmed bool
	Err               error
}

// NewScanner validates cfg and builds a scanner.
func NewScanner(cfg config.Config, provider marketdata.Provider, log logger.Logger) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{cfg: cfg, provider: provider, log: log}, nil
}

// Analyze runs one pass over the listings, fetching bars in [start, end].
func (s *Scanner) Analyze(ctx context.Context, listings []marketdata.Listing, start, end time.Time) []Result {
	metrics.ScansTotal.Inc()

	w := indicator.Windows{
		ATR:    s.cfg.ATRWindow,
		Entry:  s.cfg.EntryWindow,
		Exit:   s.cfg.ExitWindow,
		Volume: s.cfg.VolumeWindow,
	}

	results := make([]Result, 0, len(listings))
	for _, l := range listings {
		res := Result{Instrument: l.Instrument, Name: l.Name}

		bars, err := s.provider.FetchDailyBars(ctx, l.Instrument, start, end)
		if err != nil {
			res.Err = fmt.Errorf("fetch %s: %w", l.Instrument, err)
			s.log.Warn("fetch_failed", logger.String("instrument", l.Instrument), logger.Err(err))
			results = append(results, res)
			continue
		}
		if len(bars) == 0 {
			res.Err = fmt.Errorf("fetch %s: %w: provider returned no bars", l.Instrument, types.ErrDataUnavailable)
			results = append(results, res)
			continue
		}

		frames := indicator.Compute(bars, w, s.cfg.VolumeSurgeRatio)
		snap, err := signal.ClassifyLatest(bars, frames)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		res.Snapshot = snap

		if snap.Entry {
			metrics.SignalsSeen.WithLabelValues("entry").Inc()
		}
		if snap.Exit {
			metrics.SignalsSeen.WithLabelValues("exit").Inc()
		}

		sizing, err := risk.SizePosition(s.cfg.TotalCapital, s.cfg.RiskFraction, snap.Close, snap.ATR)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		res.Sizing = sizing
		res.MomentumConfirmed = s.momentumConfirmed(bars)

		s.log.Info("instrument_analyzed",
			logger.String("instrument", l.Instrument),
			logger.Float64("close", snap.Close),
			logger.Float64("atr", snap.ATR),
		)
		results = append(results, res)
	}
	return results
}

// momentumConfirmed replays the bar series through a GoTI suite and reports a
// bullish HMA or VWAO crossover on the latest bar. Suite errors degrade to
// "not confirmed".
func (s *Scanner) momentumConfirmed(bars []types.PriceBar) bool {
	ic := goti.DefaultConfig()
	ic.ATSEMAperiod = s.cfg.MomentumEMAPeriod
	suite, err := goti.NewIndicatorSuiteWithConfig(ic)
	if err != nil {
		s.log.Warn("suite_build_error", logger.Err(err))
		return false
	}
	for _, b := range bars {
		if err := suite.Add(b.High, b.Low, b.Close, float64(b.Volume)); err != nil {
			s.log.Warn("suite_add_error", logger.Err(err))
			return false
		}
	}

	if ok, err := suite.GetHMA().IsBullishCrossover(); err == nil && ok {
		return true
	}
	if ok, err := suite.GetVWAO().IsBullishCrossover(); err == nil && ok {
		return true
	}
	return false
}

// ConfirmEntry records a user-confirmed fill in the ledger after the
// capital-adequacy check: the investment must fit inside the capital not yet
// committed to open positions.
func (s *Scanner) ConfirmEntry(led *position.Ledger, p position.AddParams) (position.Position, error) {
	investment := p.FillPrice * float64(p.Quantity)
	remaining := s.cfg.TotalCapital - led.UsedCapital()
	if investment > remaining {
		return position.Position{}, fmt.Errorf("confirm %s: %w: need %.0f, remaining %.0f",
			p.Instrument, types.ErrCapacityExceeded, investment, remaining)
	}
	return led.Add(p)
}
