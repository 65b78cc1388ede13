package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GOTURTLE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// applyEnvOverrides reads well-known GOTURTLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators adjust capital or windows at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setFloat64(&cfg.TotalCapital, "GOTURTLE_TOTAL_CAPITAL")
	setFloat64(&cfg.RiskFraction, "GOTURTLE_RISK_FRACTION")
	setInt(&cfg.ATRWindow, "GOTURTLE_ATR_WINDOW")
	setInt(&cfg.EntryWindow, "GOTURTLE_ENTRY_WINDOW")
	setInt(&cfg.ExitWindow, "GOTURTLE_EXIT_WINDOW")
	setInt(&cfg.VolumeWindow, "GOTURTLE_VOLUME_WINDOW")
	setFloat64(&cfg.VolumeSurgeRatio, "GOTURTLE_VOLUME_SURGE_RATIO")
	setInt(&cfg.MomentumEMAPeriod, "GOTURTLE_MOMENTUM_EMA_PERIOD")
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
