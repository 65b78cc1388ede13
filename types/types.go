package types

import "time"

// PriceBar is one trading day's OHLCV observation. Bars are immutable once
// recorded and always handed to the engine in ascending date order; missing
// trading days are the data provider's concern.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// ExportRecord is the flat per-position row handed to an export sink
// (spreadsheet, CSV, ...). The sink performs the actual write.
type ExportRecord struct {
	Date       string
	Instrument string
	Name       string
	EntryPrice float64
	Quantity   int
	ATR        float64
	StopLoss   float64
	NextAddOn  float64 // 0 = final pyramid stage, no further add-on
}
