package l4segments

import (
	"math"
	"time"

	"github.com/banshee-data/whisker.trace/internal/config"
	"github.com/banshee-data/whisker.trace/internal/whisk/l2field"
	"github.com/banshee-data/whisker.trace/internal/whisk/l3seeds"
)

// TracingConfig is the immutable parameter set shared by the sampler, the
// seed detector and the tracer. Angles are in radians.
type TracingConfig struct {
	Sampler l2field.SamplerConfig
	Seeds   l3seeds.SeedConfig

	MinSignal        float64
	MaxLength        int
	MaxGapSteps      int
	MaxDeltaAngle    float64
	MaxDeltaRadius   float64
	MaxDeltaOffset   float64
	AngleSmoothing   float64
	MinSegmentLength int

	// FrameBudget caps the wall time spent tracing one frame; zero means
	// no cap. Seeds left when it runs out are counted as skipped.
	FrameBudget time.Duration

	// TraceOnObjectsOnly seeds from dark objects instead of the lattice.
	TraceOnObjectsOnly bool
	ObjectLevel        float64
	ObjectMinSize      int
}

// DefaultTracingConfig returns the built-in tuning defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfigFromTuning(config.EmptyTuningConfig())
}

// TracingConfigFromTuning builds a TracingConfig from cfg.
func TracingConfigFromTuning(cfg *config.TuningConfig) TracingConfig {
	return TracingConfig{
		Sampler:            l2field.SamplerConfigFromTuning(cfg),
		Seeds:              l3seeds.SeedConfigFromTuning(cfg),
		MinSignal:          cfg.GetMinSignal(),
		MaxLength:          cfg.GetMaxLength(),
		MaxGapSteps:        cfg.GetMaxGapSteps(),
		MaxDeltaAngle:      cfg.GetMaxDeltaAngleDeg() * math.Pi / 180,
		MaxDeltaRadius:     cfg.GetMaxDeltaRadius(),
		MaxDeltaOffset:     cfg.GetMaxDeltaOffset(),
		AngleSmoothing:     cfg.GetAngleSmoothing(),
		MinSegmentLength:   cfg.GetMinSegmentLength(),
		FrameBudget:        cfg.GetFrameBudget(),
		TraceOnObjectsOnly: cfg.GetTraceOnObjectsOnly(),
		ObjectLevel:        cfg.GetObjectLevel(),
		ObjectMinSize:      cfg.GetObjectMinSize(),
	}
}
