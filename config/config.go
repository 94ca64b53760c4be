package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"go-cropwatch/geo"
)

// Defaults for the detection tunables. The degree-based epsilon used
// by earlier calibrations (~0.05 deg at the equator) is only accepted
// as an input and converted once to kilometers; all runtime distance
// checks use true great-circle distance.
const (
	DefaultEpsKM         = 5.0
	DefaultMinPoints     = 5
	DefaultMinConfidence = 0.5
	DefaultWindowDays    = 7

	DefaultHeatmapLookbackDays = 30

	// Cron schedule for the stale-alert resolution sweep.
	DefaultSweepSpec = "*/10 * * * *"
)

// Severity thresholds (see ledger.SeverityFor).
const (
	DefaultHighCaseCount     = 15
	DefaultHighDenseCases    = 8
	DefaultHighDenseRadiusKM = 2.0

	DefaultMediumCaseCount     = 8
	DefaultMediumDenseCases    = 6
	DefaultMediumDenseRadiusKM = 3.0
)

// Config carries every core-level tunable with named fields so tests
// can parameterize detection deterministically.
type Config struct {
	EpsKM         float64
	MinPoints     int
	MinConfidence float64
	WindowDays    int

	HeatmapLookbackDays int

	// Debounce is how long an insertion waits to coalesce with other
	// rapid insertions for the same group before the clustering pass
	// runs. Zero means the pass runs synchronously inside submit.
	Debounce time.Duration

	SweepSpec string

	HighCaseCount     int
	HighDenseCases    int
	HighDenseRadiusKM float64

	MediumCaseCount     int
	MediumDenseCases    int
	MediumDenseRadiusKM float64
}

// Default returns the built-in defaults; Load layers the environment on top.
func Default() Config {
	return Config{
		EpsKM:               DefaultEpsKM,
		MinPoints:           DefaultMinPoints,
		MinConfidence:       DefaultMinConfidence,
		WindowDays:          DefaultWindowDays,
		HeatmapLookbackDays: DefaultHeatmapLookbackDays,
		Debounce:            0,
		SweepSpec:           DefaultSweepSpec,
		HighCaseCount:       DefaultHighCaseCount,
		HighDenseCases:      DefaultHighDenseCases,
		HighDenseRadiusKM:   DefaultHighDenseRadiusKM,
		MediumCaseCount:     DefaultMediumCaseCount,
		MediumDenseCases:    DefaultMediumDenseCases,
		MediumDenseRadiusKM: DefaultMediumDenseRadiusKM,
	}
}

// Load reads tunables from the environment (after main has loaded the
// .env file) and falls back to the defaults above.
func Load() Config {
	cfg := Default()

	cfg.EpsKM = envFloat("EPS_KM", cfg.EpsKM)
	if degStr := os.Getenv("EPS_DEGREES"); degStr != "" && os.Getenv("EPS_KM") == "" {
		if deg, err := strconv.ParseFloat(degStr, 64); err == nil {
			cfg.EpsKM = geo.DegreesToKM(deg)
			log.Printf("Calibrated EPS_DEGREES=%s to %.2f km", degStr, cfg.EpsKM)
		} else {
			log.Printf("Ignoring invalid EPS_DEGREES=%q: %v", degStr, err)
		}
	}
	cfg.MinPoints = envInt("MIN_POINTS", cfg.MinPoints)
	cfg.MinConfidence = envFloat("MIN_CONFIDENCE", cfg.MinConfidence)
	cfg.WindowDays = envInt("WINDOW_DAYS", cfg.WindowDays)
	cfg.HeatmapLookbackDays = envInt("HEATMAP_LOOKBACK_DAYS", cfg.HeatmapLookbackDays)

	if ms := envInt("DEBOUNCE_MS", 0); ms > 0 {
		cfg.Debounce = time.Duration(ms) * time.Millisecond
	}
	if spec := os.Getenv("SWEEP_SPEC"); spec != "" {
		cfg.SweepSpec = spec
	}

	cfg.HighCaseCount = envInt("SEVERITY_HIGH_CASES", cfg.HighCaseCount)
	cfg.HighDenseCases = envInt("SEVERITY_HIGH_DENSE_CASES", cfg.HighDenseCases)
	cfg.HighDenseRadiusKM = envFloat("SEVERITY_HIGH_DENSE_RADIUS_KM", cfg.HighDenseRadiusKM)
	cfg.MediumCaseCount = envInt("SEVERITY_MEDIUM_CASES", cfg.MediumCaseCount)
	cfg.MediumDenseCases = envInt("SEVERITY_MEDIUM_DENSE_CASES", cfg.MediumDenseCases)
	cfg.MediumDenseRadiusKM = envFloat("SEVERITY_MEDIUM_DENSE_RADIUS_KM", cfg.MediumDenseRadiusKM)

	return cfg
}

// Window is the rolling time span of events considered current for
// clustering.
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

func (c Config) HeatmapLookback() time.Duration {
	return time.Duration(c.HeatmapLookbackDays) * 24 * time.Hour
}

func envInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q: %v", key, s, err)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q: %v", key, s, err)
		return fallback
	}
	return v
}
