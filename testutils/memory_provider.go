package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/goturtle/types"
)

// MemoryProvider implements marketdata.Provider over fixed in-memory series,
// keyed by instrument. Date filtering is applied like a real provider would.
type MemoryProvider struct {
	mu     sync.RWMutex
	series map[string][]types.PriceBar
	errs   map[string]error // forced per-instrument failures
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		series: make(map[string][]types.PriceBar),
		errs:   make(map[string]error),
	}
}

// SetBars installs the full history for an instrument.
func (m *MemoryProvider) SetBars(instrument string, bars []types.PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[instrument] = append([]types.PriceBar(nil), bars...)
}

// FailWith makes every fetch for the instrument return err until reset with a
// nil err.
func (m *MemoryProvider) FailWith(instrument string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, instrument)
		return
	}
	m.errs[instrument] = err
}

// FetchDailyBars returns the stored bars inside [start, end].
func (m *MemoryProvider) FetchDailyBars(_ context.Context, instrument string, start, end time.Time) ([]types.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.errs[instrument]; ok {
		return nil, err
	}
	bars, ok := m.series[instrument]
	if !ok {
		return nil, fmt.Errorf("provider: %s: %w", instrument, types.ErrNotFound)
	}
	var out []types.PriceBar
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
