package l2field

import (
	"math"

	"github.com/banshee-data/whisker.trace/internal/config"
)

// SamplerConfig fixes the detector geometry and the tick spacing of the
// response stack. Angles are in radians.
type SamplerConfig struct {
	OffsetStep     float64
	OffsetMax      float64
	AngleStep      float64
	RadiusMin      float64
	RadiusMax      float64
	RadiusStep     float64
	HatRadius      float64
	TemplateLength int
}

// DefaultSamplerConfig returns the built-in tuning defaults.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfigFromTuning(config.EmptyTuningConfig())
}

// SamplerConfigFromTuning extracts the sampler parameters from cfg.
func SamplerConfigFromTuning(cfg *config.TuningConfig) SamplerConfig {
	return SamplerConfig{
		OffsetStep:     cfg.GetOffsetStep(),
		OffsetMax:      cfg.GetOffsetMax(),
		AngleStep:      cfg.GetAngleStepDeg() * math.Pi / 180,
		RadiusMin:      cfg.GetRadiusMin(),
		RadiusMax:      cfg.GetRadiusMax(),
		RadiusStep:     cfg.GetRadiusStep(),
		HatRadius:      cfg.GetHatRadius(),
		TemplateLength: cfg.GetTemplateLength(),
	}
}
