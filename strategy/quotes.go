package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/goturtle/config"
	"github.com/evdnx/goturtle/indicator"
	"github.com/evdnx/goturtle/marketdata"
	"github.com/evdnx/goturtle/position"
	"github.com/evdnx/goturtle/types"
)

// QuoteAdapter implements position.QuoteSource on top of the market-data
// provider: per instrument it refetches recent history, recomputes the
// indicator series and hands the ledger the latest close plus the Donchian
// lower channel value of the previous bar (look-back only, same rule the
// classifier applies).
type QuoteAdapter struct {
	Provider marketdata.Provider
	Cfg      config.Config
	// LookbackDays bounds the history request; it must cover at least the
	// exit window plus non-trading days. Zero picks a safe default.
	LookbackDays int
	// Now is overridable for tests.
	Now func() time.Time
}

// LatestQuote fetches and derives the refresh input for one instrument.
func (a *QuoteAdapter) LatestQuote(ctx context.Context, instrument string) (position.Quote, error) {
	lookback := a.LookbackDays
	if lookback <= 0 {
		// Calendar days per trading day, with slack for holidays.
		lookback = a.Cfg.ExitWindow*2 + 14
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	end := now()
	start := end.AddDate(0, 0, -lookback)

	bars, err := a.Provider.FetchDailyBars(ctx, instrument, start, end)
	if err != nil {
		return position.Quote{}, fmt.Errorf("quote %s: %w", instrument, err)
	}
	if len(bars) == 0 {
		return position.Quote{}, fmt.Errorf("quote %s: %w: no bars", instrument, types.ErrDataUnavailable)
	}

	frames := indicator.Compute(bars, indicator.Windows{Exit: a.Cfg.ExitWindow}, a.Cfg.VolumeSurgeRatio)
	last := frames[len(frames)-1]
	return position.Quote{
		Price:         bars[len(bars)-1].Close,
		DonchianLower: last.PrevLower,
	}, nil
}
