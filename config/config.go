package config

import (
	"errors"
	"fmt"
)

// Config holds all tunable parameters for the turtle engine: account capital,
// the fixed-fractional risk rule, and the rolling-window lengths the
// indicator engine runs on.
type Config struct {
	// Account parameters.
	TotalCapital float64 `toml:"total_capital"` // account size in price units
	RiskFraction float64 `toml:"risk_fraction"` // e.g. 0.02 = the 2 % rule

	// Indicator window lengths, in trading days.
	ATRWindow    int `toml:"atr_window"`    // default 20
	EntryWindow  int `toml:"entry_window"`  // Donchian upper, default 20
	ExitWindow   int `toml:"exit_window"`   // Donchian lower, default 10
	VolumeWindow int `toml:"volume_window"` // rolling mean volume, default 20

	// VolumeSurgeRatio marks a bar as a volume surge when its volume exceeds
	// ratio x the rolling mean. Default 1.5; older deployments ran 1.3.
	VolumeSurgeRatio float64 `toml:"volume_surge_ratio"`

	// MomentumEMAPeriod feeds the goti suite used for the momentum
	// confirmation overlay.
	MomentumEMAPeriod int `toml:"momentum_ema_period"`
}

// Defaults returns the canonical turtle configuration.
func Defaults() Config {
	return Config{
		RiskFraction:      0.02,
		ATRWindow:         20,
		EntryWindow:       20,
		ExitWindow:        10,
		VolumeWindow:      20,
		VolumeSurgeRatio:  1.5,
		MomentumEMAPeriod: 5,
	}
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, allowing the caller to surface a
// clear configuration problem before any analysis starts.
func (c *Config) Validate() error {
	if c.TotalCapital <= 0 {
		return fmt.Errorf("TotalCapital (%f) must be positive", c.TotalCapital)
	}
	if c.RiskFraction <= 0 || c.RiskFraction > 1 {
		return fmt.Errorf("RiskFraction (%f) must be >0 and <=1", c.RiskFraction)
	}
	if c.ATRWindow <= 0 {
		return errors.New("ATRWindow must be positive")
	}
	if c.EntryWindow <= 0 {
		return errors.New("EntryWindow must be positive")
	}
	if c.ExitWindow <= 0 {
		return errors.New("ExitWindow must be positive")
	}
	if c.VolumeWindow <= 0 {
		return errors.New("VolumeWindow must be positive")
	}
	if c.VolumeSurgeRatio <= 0 {
		return errors.New("VolumeSurgeRatio must be positive")
	}
	if c.MomentumEMAPeriod <= 0 {
		return errors.New("MomentumEMAPeriod must be positive")
	}
	return nil
}
