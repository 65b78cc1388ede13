// Package position tracks the lifecycle of user-confirmed turtle trades: an
// in-memory ledger whose entries move from OPEN through exit-signaled states
// to CLOSED, with stop-loss and pyramid levels frozen at entry.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evdnx/goturtle/logger"
	"github.com/evdnx/goturtle/metrics"
	"github.com/evdnx/goturtle/signal"
	"github.com/evdnx/goturtle/types"
)

// State is the lifecycle state of one position.
type State string

const (
	StateOpen           State = "OPEN"
	StateStopSignaled   State = "EXIT_SIGNALED_STOP"
	StateProfitSignaled State = "EXIT_SIGNALED_PROFIT"
	StateClosed         State = "CLOSED"
)

// MaxPyramidStage is the last pyramid stage; no add-on level exists beyond it.
const MaxPyramidStage = 4

// Position is one confirmed trade record. StopLoss and NextAddOn are computed
// once at entry from the ATR of that moment and never recomputed; only
// CurrentPrice, P&L and State change afterwards.
type Position struct {
	ID         string
	Instrument string
	Name       string
	OpenedAt   time.Time
	EntryPrice float64
	EntryATR   float64
	Quantity   int
	Stage      int     // pyramid stage 1..4
	StopLoss   float64 // EntryPrice - 2xEntryATR
	NextAddOn  float64 // EntryPrice + 0.5xEntryATR; 0 at the final stage

	State        State
	CurrentPrice float64
	PnL          float64
	PnLPct       float64
	ClosedAt     time.Time // zero until closed
}

// Quote is the refresh input for one instrument: the latest price and, when
// the exit window has filled, the latest Donchian lower channel value.
type Quote struct {
	Price         float64
	DonchianLower *float64
}

// QuoteSource supplies the latest quote per instrument during a batch update.
type QuoteSource interface {
	LatestQuote(ctx context.Context, instrument string) (Quote, error)
}

// UpdateError reports one position whose refresh failed. The position keeps
// its prior state and cached price.
type UpdateError struct {
	PositionID string
	Instrument string
	Err        error
}

func (e UpdateError) Error() string {
	return fmt.Sprintf("update %s (%s): %v", e.PositionID, e.Instrument, e.Err)
}

func (e UpdateError) Unwrap() error { return e.Err }

// AddParams describes a user-confirmed entry. The fill price may differ from
// the signal's close.
type AddParams struct {
	Instrument string
	Name       string
	FillPrice  float64
	Quantity   int
	ATR        float64
	Stage      int // defaults to 1
}

// Ledger is the single mutable registry of positions for one session. Entries
// are owned exclusively by the ledger and mutated only through its methods.
// Closed positions remain as history until explicitly deleted or purged.
type Ledger struct {
	mu        sync.Mutex
	positions []*Position
	log       logger.Logger
	now       func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger(log logger.Logger) *Ledger {
	return &Ledger{log: log, now: time.Now}
}

// Add inserts a new position in state OPEN and freezes its stop-loss and
// next add-on level from the supplied ATR. Capital adequacy is the caller's
// responsibility, checked before Add mutates anything.
func (l *Ledger) Add(p AddParams) (Position, error) {
	switch {
	case p.Instrument == "":
		return Position{}, fmt.Errorf("add: %w: missing instrument", types.ErrInvalidParameter)
	case p.FillPrice <= 0:
		return Position{}, fmt.Errorf("add: %w: fill price %f", types.ErrInvalidParameter, p.FillPrice)
	case p.Quantity < 1:
		return Position{}, fmt.Errorf("add: %w: quantity %d", types.ErrInvalidParameter, p.Quantity)
	case p.ATR <= 0:
		return Position{}, fmt.Errorf("add: %w: atr %f", types.ErrInvalidParameter, p.ATR)
	case p.Stage < 0 || p.Stage > MaxPyramidStage:
		return Position{}, fmt.Errorf("add: %w: stage %d", types.ErrInvalidParameter, p.Stage)
	}

	stage := p.Stage
	if stage == 0 {
		stage = 1
	}

	opened := l.now()
	pos := &Position{
		ID:           fmt.Sprintf("%s-%d", p.Instrument, opened.UnixNano()),
		Instrument:   p.Instrument,
		Name:         p.Name,
		OpenedAt:     opened,
		EntryPrice:   p.FillPrice,
		EntryATR:     p.ATR,
		Quantity:     p.Quantity,
		Stage:        stage,
		StopLoss:     p.FillPrice - signal.StopLossATRMultiple*p.ATR,
		State:        StateOpen,
		CurrentPrice: p.FillPrice,
	}
	if stage < MaxPyramidStage {
		pos.NextAddOn = p.FillPrice + signal.AddOnATRStep*p.ATR
	}

	l.mu.Lock()
	l.positions = append(l.positions, pos)
	l.mu.Unlock()

	metrics.PositionsOpen.Inc()
	l.log.Info("position_opened",
		logger.String("id", pos.ID),
		logger.String("instrument", pos.Instrument),
		logger.Float64("entry_price", pos.EntryPrice),
		logger.Int("quantity", pos.Quantity),
		logger.Float64("stop_loss", pos.StopLoss),
	)
	return *pos, nil
}

// UsedCapital sums EntryPrice x Quantity over all OPEN positions; callers
// subtract it from total capital for the adequacy check at add time.
func (l *Ledger) UsedCapital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var used float64
	for _, p := range l.positions {
		if p.State == StateOpen {
			used += p.EntryPrice * float64(p.Quantity)
		}
	}
	return used
}

// UpdateAll refreshes every position not yet closed from src. Quotes for
// distinct instruments are fetched concurrently (the read phase shares no
// state across instruments); the write-back is serialized. A failed fetch is
// isolated to the affected positions: they keep their prior state and price,
// the rest of the batch still updates.
func (l *Ledger) UpdateAll(ctx context.Context, src QuoteSource) (int, []UpdateError) {
	l.mu.Lock()
	instruments := make(map[string]struct{})
	for _, p := range l.positions {
		if p.State != StateClosed {
			instruments[p.Instrument] = struct{}{}
		}
	}
	l.mu.Unlock()

	if len(instruments) == 0 {
		return 0, nil
	}

	var qmu sync.Mutex
	quotes := make(map[string]Quote, len(instruments))
	fetchErr := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for inst := range instruments {
		g.Go(func() error {
			q, err := src.LatestQuote(gctx, inst)
			qmu.Lock()
			if err != nil {
				fetchErr[inst] = err
			} else {
				quotes[inst] = q
			}
			qmu.Unlock()
			return nil // failures stay per-instrument, never abort the batch
		})
	}
	_ = g.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	var updated int
	var failed []UpdateError
	for _, p := range l.positions {
		if p.State == StateClosed {
			continue
		}
		if err, ok := fetchErr[p.Instrument]; ok {
			failed = append(failed, UpdateError{PositionID: p.ID, Instrument: p.Instrument, Err: err})
			metrics.UpdateFailures.Inc()
			l.log.Warn("position_update_failed",
				logger.String("id", p.ID),
				logger.String("instrument", p.Instrument),
				logger.Err(err),
			)
			continue
		}
		q, ok := quotes[p.Instrument]
		if !ok {
			// Context cancellation can leave an instrument unfetched.
			failed = append(failed, UpdateError{PositionID: p.ID, Instrument: p.Instrument, Err: ctx.Err()})
			metrics.UpdateFailures.Inc()
			continue
		}
		l.apply(p, q)
		updated++
	}
	return updated, failed
}

// apply refreshes price and P&L, then evaluates transitions in priority
// order: stop-loss beats profit-exit. Exit-signaled states persist until an
// explicit close.
func (l *Ledger) apply(p *Position, q Quote) {
	p.CurrentPrice = q.Price
	p.PnL = (q.Price - p.EntryPrice) * float64(p.Quantity)
	p.PnLPct = (q.Price - p.EntryPrice) / p.EntryPrice * 100

	if p.State != StateOpen {
		return
	}
	switch {
	case q.Price <= p.StopLoss:
		p.State = StateStopSignaled
		l.log.Info("stop_signaled",
			logger.String("id", p.ID),
			logger.Float64("price", q.Price),
			logger.Float64("stop_loss", p.StopLoss),
		)
	case q.DonchianLower != nil && q.Price <= *q.DonchianLower:
		p.State = StateProfitSignaled
		l.log.Info("profit_exit_signaled",
			logger.String("id", p.ID),
			logger.Float64("price", q.Price),
			logger.Float64("donchian_lower", *q.DonchianLower),
		)
	}
}

// Close marks the position CLOSED and stamps the close time. Closing an
// already-closed position is a no-op.
func (l *Ledger) Close(id string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.find(id)
	if p == nil {
		return Position{}, fmt.Errorf("close %q: %w", id, types.ErrNotFound)
	}
	if p.State == StateClosed {
		return *p, nil
	}
	p.State = StateClosed
	p.ClosedAt = l.now()

	metrics.PositionsOpen.Dec()
	l.log.Info("position_closed",
		logger.String("id", p.ID),
		logger.Float64("pnl", p.PnL),
		logger.Float64("pnl_pct", p.PnLPct),
	)
	return *p, nil
}

// Delete removes a position outright, open or closed.
func (l *Ledger) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, p := range l.positions {
		if p.ID == id {
			if p.State != StateClosed {
				metrics.PositionsOpen.Dec()
			}
			l.positions = append(l.positions[:i], l.positions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %q: %w", id, types.ErrNotFound)
}

// PurgeClosed drops all closed positions and reports how many were removed.
func (l *Ledger) PurgeClosed() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.positions[:0]
	removed := 0
	for _, p := range l.positions {
		if p.State == StateClosed {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	l.positions = kept
	return removed
}

// Positions returns a snapshot copy of every position, insertion-ordered.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, len(l.positions))
	for i, p := range l.positions {
		out[i] = *p
	}
	return out
}

// Get returns one position by ID.
func (l *Ledger) Get(id string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.find(id); p != nil {
		return *p, nil
	}
	return Position{}, fmt.Errorf("get %q: %w", id, types.ErrNotFound)
}

// ExportRecords produces the flat per-position rows an export sink consumes.
func (l *Ledger) ExportRecords() []types.ExportRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.ExportRecord, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, types.ExportRecord{
			Date:       p.OpenedAt.Format("2006-01-02"),
			Instrument: p.Instrument,
			Name:       p.Name,
			EntryPrice: p.EntryPrice,
			Quantity:   p.Quantity,
			ATR:        p.EntryATR,
			StopLoss:   p.StopLoss,
			NextAddOn:  p.NextAddOn,
		})
	}
	return out
}

func (l *Ledger) find(id string) *Position {
	for _, p := range l.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}
