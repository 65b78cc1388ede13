// Package marketdata declares the external collaborators the turtle core
// consumes: daily OHLCV history and instrument-name resolution. The core
// never implements the network side of either.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evdnx/goturtle/types"
)

// Provider fetches daily bars for one instrument, in ascending date order.
// Gaps for non-trading days are the provider's concern.
type Provider interface {
	FetchDailyBars(ctx context.Context, instrument string, start, end time.Time) ([]types.PriceBar, error)
}

// Directory resolves free-form user text (an exact identifier or part of a
// human-readable name) to instrument keys.
type Directory interface {
	ResolveSymbol(userText string) ([]Listing, error)
}

// Listing pairs an instrument key with its display name.
type Listing struct {
	Instrument string
	Name       string
}

// StaticDirectory is a Directory over a fixed listing, typically loaded once
// from an exchange's ticker dump.
type StaticDirectory struct {
	listings []Listing
	byKey    map[string]int
}

// NewStaticDirectory builds a directory from the supplied listings.
func NewStaticDirectory(listings []Listing) *StaticDirectory {
	d := &StaticDirectory{
		listings: append([]Listing(nil), listings...),
		byKey:    make(map[string]int, len(listings)),
	}
	for i, l := range d.listings {
		d.byKey[l.Instrument] = i
	}
	return d
}

// ResolveSymbol matches an exact instrument key first, then falls back to a
// case-insensitive substring match on display names. Every matching listing
// is returned.
func (d *StaticDirectory) ResolveSymbol(userText string) ([]Listing, error) {
	s := strings.TrimSpace(userText)
	if s == "" {
		return nil, fmt.Errorf("resolve: %w: empty input", types.ErrNotFound)
	}

	if i, ok := d.byKey[s]; ok {
		return []Listing{d.listings[i]}, nil
	}

	var matches []Listing
	needle := strings.ToLower(s)
	for _, l := range d.listings {
		if strings.Contains(strings.ToLower(l.Name), needle) {
			matches = append(matches, l)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("resolve %q: %w", userText, types.ErrNotFound)
	}
	return matches, nil
}
