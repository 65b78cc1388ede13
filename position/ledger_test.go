package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evdnx/goturtle/testutils"
	"github.com/evdnx/goturtle/types"
)

// stubQuotes implements QuoteSource over fixed per-instrument quotes and
// forced failures.
type stubQuotes struct {
	quotes map[string]Quote
	errs   map[string]error
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{quotes: make(map[string]Quote), errs: make(map[string]error)}
}

func (s *stubQuotes) SetQuote(instrument string, q Quote) {
	s.quotes[instrument] = q
	delete(s.errs, instrument)
}

func (s *stubQuotes) FailWith(instrument string, err error) {
	s.errs[instrument] = err
}

func (s *stubQuotes) LatestQuote(_ context.Context, instrument string) (Quote, error) {
	if err, ok := s.errs[instrument]; ok {
		return Quote{}, err
	}
	q, ok := s.quotes[instrument]
	if !ok {
		return Quote{}, types.ErrNotFound
	}
	return q, nil
}

func newTestLedger() *Ledger {
	l := NewLedger(testutils.NewMockLogger())
	// Deterministic, strictly increasing clock so IDs never collide.
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	n := 0
	l.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return l
}

func mustAdd(t *testing.T, l *Ledger, p AddParams) Position {
	t.Helper()
	pos, err := l.Add(p)
	if err != nil {
		t.Fatalf("Add(%+v) failed: %v", p, err)
	}
	return pos
}

func TestAddFreezesLevelsAtEntry(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", Name: "Samsung Electronics", FillPrice: 70_000, Quantity: 71, ATR: 1_400})

	if pos.State != StateOpen {
		t.Fatalf("expected OPEN, got %s", pos.State)
	}
	if pos.StopLoss != 67_200 {
		t.Fatalf("expected stop 67,200, got %v", pos.StopLoss)
	}
	if pos.NextAddOn != 70_700 {
		t.Fatalf("expected add-on 70,700, got %v", pos.NextAddOn)
	}
	if pos.Stage != 1 {
		t.Fatalf("expected default stage 1, got %d", pos.Stage)
	}
}

func TestFinalStageHasNoAddOn(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400, Stage: MaxPyramidStage})
	if pos.NextAddOn != 0 {
		t.Fatalf("stage 4 must carry no add-on level, got %v", pos.NextAddOn)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	l := newTestLedger()
	cases := []AddParams{
		{Instrument: "", FillPrice: 100, Quantity: 1, ATR: 1},
		{Instrument: "X", FillPrice: 0, Quantity: 1, ATR: 1},
		{Instrument: "X", FillPrice: 100, Quantity: 0, ATR: 1},
		{Instrument: "X", FillPrice: 100, Quantity: 1, ATR: 0},
		{Instrument: "X", FillPrice: 100, Quantity: 1, ATR: 1, Stage: 5},
	}
	for _, c := range cases {
		if _, err := l.Add(c); !errors.Is(err, types.ErrInvalidParameter) {
			t.Fatalf("Add(%+v): expected ErrInvalidParameter, got %v", c, err)
		}
	}
	if got := len(l.Positions()); got != 0 {
		t.Fatalf("rejected adds must not mutate the ledger, found %d positions", got)
	}
}

/*
The stop is fixed at entry. A later update carrying a very different channel
and implied volatility must refresh price and P&L only.
*/
func TestStopLossNeverRecomputed(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 71, ATR: 1_400})

	src := newStubQuotes()
	lower := 69_000.0
	src.SetQuote("005930", Quote{Price: 71_000, DonchianLower: &lower})

	updated, failed := l.UpdateAll(context.Background(), src)
	if updated != 1 || len(failed) != 0 {
		t.Fatalf("expected 1 clean update, got %d updated, %d failed", updated, len(failed))
	}

	got, _ := l.Get(pos.ID)
	if got.StopLoss != 67_200 {
		t.Fatalf("stop moved to %v after an update", got.StopLoss)
	}
	if got.CurrentPrice != 71_000 {
		t.Fatalf("expected refreshed price 71,000, got %v", got.CurrentPrice)
	}
	if got.PnL != 71_000*71-70_000*71 {
		t.Fatalf("unexpected PnL %v", got.PnL)
	}
	if got.State != StateOpen {
		t.Fatalf("price above all triggers must keep OPEN, got %s", got.State)
	}
}

// Stop-loss wins over profit-exit when both trigger on the same update.
func TestStopBeatsProfitExit(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400})

	src := newStubQuotes()
	lower := 68_000.0 // price is under the channel AND under the 67,200 stop
	src.SetQuote("005930", Quote{Price: 67_000, DonchianLower: &lower})

	l.UpdateAll(context.Background(), src)

	got, _ := l.Get(pos.ID)
	if got.State != StateStopSignaled {
		t.Fatalf("expected EXIT_SIGNALED_STOP, got %s", got.State)
	}
}

func TestProfitExitOnChannelBreak(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400})

	src := newStubQuotes()
	lower := 69_500.0
	src.SetQuote("005930", Quote{Price: 69_000, DonchianLower: &lower}) // above the 67,200 stop

	l.UpdateAll(context.Background(), src)

	got, _ := l.Get(pos.ID)
	if got.State != StateProfitSignaled {
		t.Fatalf("expected EXIT_SIGNALED_PROFIT, got %s", got.State)
	}
}

func TestMissingChannelCannotSignalProfitExit(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400})

	src := newStubQuotes()
	src.SetQuote("005930", Quote{Price: 69_000}) // no channel yet

	l.UpdateAll(context.Background(), src)

	if got, _ := l.Get(pos.ID); got.State != StateOpen {
		t.Fatalf("expected OPEN without a channel value, got %s", got.State)
	}
}

/*
A failed fetch must leave the affected position untouched while the rest of
the batch still updates.
*/
func TestUpdateFailureIsolated(t *testing.T) {
	l := newTestLedger()
	bad := mustAdd(t, l, AddParams{Instrument: "BAD", FillPrice: 50_000, Quantity: 5, ATR: 1_000})
	good := mustAdd(t, l, AddParams{Instrument: "GOOD", FillPrice: 70_000, Quantity: 10, ATR: 1_400})

	src := newStubQuotes()
	src.SetQuote("GOOD", Quote{Price: 72_000})
	src.FailWith("BAD", errors.New("provider timeout"))

	updated, failed := l.UpdateAll(context.Background(), src)
	if updated != 1 {
		t.Fatalf("expected 1 updated, got %d", updated)
	}
	if len(failed) != 1 || failed[0].PositionID != bad.ID {
		t.Fatalf("expected one failure for %s, got %+v", bad.ID, failed)
	}

	gotBad, _ := l.Get(bad.ID)
	if gotBad.CurrentPrice != 50_000 || gotBad.State != StateOpen {
		t.Fatalf("failed position must keep prior price and state, got %+v", gotBad)
	}
	gotGood, _ := l.Get(good.ID)
	if gotGood.CurrentPrice != 72_000 {
		t.Fatalf("healthy position must still update, got price %v", gotGood.CurrentPrice)
	}
}

func TestSignaledStateRefreshesButPersists(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400})

	src := newStubQuotes()
	src.SetQuote("005930", Quote{Price: 67_000})
	l.UpdateAll(context.Background(), src)

	// Price recovers above the stop; the signal does not un-fire.
	src.SetQuote("005930", Quote{Price: 69_000})
	l.UpdateAll(context.Background(), src)

	got, _ := l.Get(pos.ID)
	if got.State != StateStopSignaled {
		t.Fatalf("signaled state must persist, got %s", got.State)
	}
	if got.CurrentPrice != 69_000 {
		t.Fatalf("signaled position must still refresh price, got %v", got.CurrentPrice)
	}
}

func TestCloseIsExplicitAndIdempotent(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400})

	closed, err := l.Close(pos.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.State != StateClosed || closed.ClosedAt.IsZero() {
		t.Fatalf("expected CLOSED with timestamp, got %+v", closed)
	}

	again, err := l.Close(pos.ID)
	if err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if again != closed {
		t.Fatalf("closing twice must change nothing: %+v vs %+v", again, closed)
	}

	if _, err := l.Close("missing"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClosedPositionsSkipUpdates(t *testing.T) {
	l := newTestLedger()
	pos := mustAdd(t, l, AddParams{Instrument: "005930", FillPrice: 70_000, Quantity: 10, ATR: 1_400})
	l.Close(pos.ID)

	src := newStubQuotes()
	src.SetQuote("005930", Quote{Price: 1})

	updated, failed := l.UpdateAll(context.Background(), src)
	if updated != 0 || len(failed) != 0 {
		t.Fatalf("closed positions must be skipped, got %d updated, %d failed", updated, len(failed))
	}
	if got, _ := l.Get(pos.ID); got.CurrentPrice != 70_000 {
		t.Fatalf("closed position price changed to %v", got.CurrentPrice)
	}
}

func TestUsedCapitalCountsOpenOnly(t *testing.T) {
	l := newTestLedger()
	a := mustAdd(t, l, AddParams{Instrument: "A", FillPrice: 1_000, Quantity: 10, ATR: 50})
	mustAdd(t, l, AddParams{Instrument: "B", FillPrice: 2_000, Quantity: 5, ATR: 80})

	if got := l.UsedCapital(); got != 1_000*10+2_000*5 {
		t.Fatalf("expected used capital 20,000, got %v", got)
	}

	l.Close(a.ID)
	if got := l.UsedCapital(); got != 2_000*5 {
		t.Fatalf("closed positions must not count, got %v", got)
	}
}

func TestDeleteAndPurge(t *testing.T) {
	l := newTestLedger()
	a := mustAdd(t, l, AddParams{Instrument: "A", FillPrice: 1_000, Quantity: 1, ATR: 50})
	b := mustAdd(t, l, AddParams{Instrument: "B", FillPrice: 1_000, Quantity: 1, ATR: 50})
	c := mustAdd(t, l, AddParams{Instrument: "C", FillPrice: 1_000, Quantity: 1, ATR: 50})

	if err := l.Delete(a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := l.Delete(a.ID); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	l.Close(b.ID)
	if removed := l.PurgeClosed(); removed != 1 {
		t.Fatalf("expected purge of 1, got %d", removed)
	}

	left := l.Positions()
	if len(left) != 1 || left[0].ID != c.ID {
		t.Fatalf("expected only %s to remain, got %+v", c.ID, left)
	}
}

func TestExportRecords(t *testing.T) {
	l := newTestLedger()
	mustAdd(t, l, AddParams{Instrument: "005930", Name: "Samsung Electronics", FillPrice: 70_000, Quantity: 71, ATR: 1_400})

	recs := l.ExportRecords()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Instrument != "005930" || r.Name != "Samsung Electronics" {
		t.Fatalf("unexpected identity fields: %+v", r)
	}
	if r.EntryPrice != 70_000 || r.Quantity != 71 || r.ATR != 1_400 {
		t.Fatalf("unexpected entry fields: %+v", r)
	}
	if r.StopLoss != 67_200 || r.NextAddOn != 70_700 {
		t.Fatalf("unexpected level fields: %+v", r)
	}
	if r.Date == "" {
		t.Fatal("expected a formatted open date")
	}
}
