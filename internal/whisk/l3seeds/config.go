package l3seeds

import (
	"errors"
	"fmt"

	"github.com/banshee-data/whisker.trace/internal/config"
)

// ErrWindow is returned for a window that keeps no samples.
var ErrWindow = errors.New("invalid seed window")

// Window restricts the samples that contribute to a seed statistic to the
// darkness rank fractions [Low, 1-High]. The zero Window keeps everything.
type Window struct {
	Low, High float64
}

// Validate rejects negative fractions and windows with Low+High >= 1.
func (w Window) Validate() error {
	if w.Low < 0 || w.High < 0 || w.Low+w.High >= 1 {
		return fmt.Errorf("%w: (%g, %g)", ErrWindow, w.Low, w.High)
	}
	return nil
}

// IsZero reports whether the window keeps every sample.
func (w Window) IsZero() bool { return w.Low == 0 && w.High == 0 }

// SeedConfig holds the seed detector parameters.
type SeedConfig struct {
	MaxRadius      int
	MaxIterations  int
	Window         Window
	LatticeSpacing int
	SeedThreshold  float64
	AccumThreshold int
	MinContrast    float64
}

// DefaultSeedConfig returns the built-in tuning defaults.
func DefaultSeedConfig() SeedConfig {
	return SeedConfigFromTuning(config.EmptyTuningConfig())
}

// SeedConfigFromTuning extracts the seed parameters from cfg.
func SeedConfigFromTuning(cfg *config.TuningConfig) SeedConfig {
	return SeedConfig{
		MaxRadius:      cfg.GetSeedMaxRadius(),
		MaxIterations:  cfg.GetSeedMaxIterations(),
		Window:         Window{Low: cfg.GetSeedWindowLow(), High: cfg.GetSeedWindowHigh()},
		LatticeSpacing: cfg.GetSeedLatticeSpacing(),
		SeedThreshold:  cfg.GetSeedThreshold(),
		AccumThreshold: cfg.GetSeedAccumThreshold(),
		MinContrast:    cfg.GetSeedMinContrast(),
	}
}
