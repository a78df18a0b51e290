// Package config loads the tuning parameters for whisker tracing and
// correspondence, and the runtime settings of the binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the flat JSON schema for tracing and linking parameters.
// Every field is optional; the Get* methods supply defaults for absent keys.
type TuningConfig struct {
	// Field sampler
	OffsetStep     *float64 `json:"offset_step,omitempty"`
	OffsetMax      *float64 `json:"offset_max,omitempty"`
	AngleStepDeg   *float64 `json:"angle_step_deg,omitempty"`
	RadiusMin      *float64 `json:"radius_min,omitempty"`
	RadiusMax      *float64 `json:"radius_max,omitempty"`
	RadiusStep     *float64 `json:"radius_step,omitempty"`
	HatRadius      *float64 `json:"hat_radius,omitempty"`
	TemplateLength *int     `json:"template_length,omitempty"`

	// Seed detector
	SeedMaxRadius      *int     `json:"seed_max_radius,omitempty"`
	SeedMaxIterations  *int     `json:"seed_max_iterations,omitempty"`
	SeedWindowLow      *float64 `json:"seed_window_low,omitempty"`
	SeedWindowHigh     *float64 `json:"seed_window_high,omitempty"`
	SeedLatticeSpacing *int     `json:"seed_lattice_spacing,omitempty"`
	SeedThreshold      *float64 `json:"seed_threshold,omitempty"`
	SeedAccumThreshold *int     `json:"seed_accum_threshold,omitempty"`
	SeedMinContrast    *float64 `json:"seed_min_contrast,omitempty"`

	// Tracer
	MinSignal          *float64 `json:"min_signal,omitempty"`
	MaxLength          *int     `json:"max_length,omitempty"`
	MaxGapSteps        *int     `json:"max_gap_steps,omitempty"`
	MaxDeltaAngleDeg   *float64 `json:"max_delta_angle_deg,omitempty"`
	MaxDeltaRadius     *float64 `json:"max_delta_radius,omitempty"`
	MaxDeltaOffset     *float64 `json:"max_delta_offset,omitempty"`
	AngleSmoothing     *float64 `json:"angle_smoothing,omitempty"`
	MinSegmentLength   *int     `json:"min_segment_length,omitempty"`
	FrameBudget        *string  `json:"frame_budget,omitempty"` // duration string like "2s"; "0s" disables
	ObjectLevel        *float64 `json:"object_level,omitempty"`
	ObjectMinSize      *int     `json:"object_min_size,omitempty"`
	TraceOnObjectsOnly *bool    `json:"trace_on_objects_only,omitempty"`

	// Linker
	GateDistance      *float64   `json:"gate_distance,omitempty"`
	SoftDistance      *float64   `json:"soft_distance,omitempty"`
	MaxMisses         *int       `json:"max_misses,omitempty"`
	DistanceSamples   *int       `json:"distance_samples,omitempty"`
	StartCoherent     *float64   `json:"start_coherent,omitempty"`
	CoherentStay      *float64   `json:"coherent_stay,omitempty"`
	AmbiguousStay     *float64   `json:"ambiguous_stay,omitempty"`
	EmissionCoherent  *[]float64 `json:"emission_coherent,omitempty"`
	EmissionAmbiguous *[]float64 `json:"emission_ambiguous,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64     { return &v }
func ptrBool(v bool) *bool              { return &v }
func ptrString(v string) *string        { return &v }
func ptrInt(v int) *int                 { return &v }
func ptrFloats(v ...float64) *[]float64 { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Its Get* methods return the built-in defaults.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		OffsetStep:         ptrFloat64(e.GetOffsetStep()),
		OffsetMax:          ptrFloat64(e.GetOffsetMax()),
		AngleStepDeg:       ptrFloat64(e.GetAngleStepDeg()),
		RadiusMin:          ptrFloat64(e.GetRadiusMin()),
		RadiusMax:          ptrFloat64(e.GetRadiusMax()),
		RadiusStep:         ptrFloat64(e.GetRadiusStep()),
		HatRadius:          ptrFloat64(e.GetHatRadius()),
		TemplateLength:     ptrInt(e.GetTemplateLength()),
		SeedMaxRadius:      ptrInt(e.GetSeedMaxRadius()),
		SeedMaxIterations:  ptrInt(e.GetSeedMaxIterations()),
		SeedWindowLow:      ptrFloat64(e.GetSeedWindowLow()),
		SeedWindowHigh:     ptrFloat64(e.GetSeedWindowHigh()),
		SeedLatticeSpacing: ptrInt(e.GetSeedLatticeSpacing()),
		SeedThreshold:      ptrFloat64(e.GetSeedThreshold()),
		SeedAccumThreshold: ptrInt(e.GetSeedAccumThreshold()),
		SeedMinContrast:    ptrFloat64(e.GetSeedMinContrast()),
		MinSignal:          ptrFloat64(e.GetMinSignal()),
		MaxLength:          ptrInt(e.GetMaxLength()),
		MaxGapSteps:        ptrInt(e.GetMaxGapSteps()),
		MaxDeltaAngleDeg:   ptrFloat64(e.GetMaxDeltaAngleDeg()),
		MaxDeltaRadius:     ptrFloat64(e.GetMaxDeltaRadius()),
		MaxDeltaOffset:     ptrFloat64(e.GetMaxDeltaOffset()),
		AngleSmoothing:     ptrFloat64(e.GetAngleSmoothing()),
		MinSegmentLength:   ptrInt(e.GetMinSegmentLength()),
		FrameBudget:        ptrString(e.GetFrameBudget().String()),
		ObjectLevel:        ptrFloat64(e.GetObjectLevel()),
		ObjectMinSize:      ptrInt(e.GetObjectMinSize()),
		TraceOnObjectsOnly: ptrBool(e.GetTraceOnObjectsOnly()),
		GateDistance:       ptrFloat64(e.GetGateDistance()),
		SoftDistance:       ptrFloat64(e.GetSoftDistance()),
		MaxMisses:          ptrInt(e.GetMaxMisses()),
		DistanceSamples:    ptrInt(e.GetDistanceSamples()),
		StartCoherent:      ptrFloat64(e.GetStartCoherent()),
		CoherentStay:       ptrFloat64(e.GetCoherentStay()),
		AmbiguousStay:      ptrFloat64(e.GetAmbiguousStay()),
		EmissionCoherent:   ptrFloats(e.GetEmissionCoherent()...),
		EmissionAmbiguous:  ptrFloats(e.GetEmissionAmbiguous()...),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the JSON keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/whisk/l4segments/
		"../../../../" + DefaultConfigPath,    // from internal/whisk/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GetOffsetStep() <= 0 || c.GetRadiusStep() <= 0 || c.GetAngleStepDeg() <= 0 {
		return fmt.Errorf("offset_step, radius_step and angle_step_deg must be positive")
	}
	if c.GetOffsetMax() < 0 {
		return fmt.Errorf("offset_max must be non-negative, got %f", c.GetOffsetMax())
	}
	if c.GetRadiusMin() <= 0 || c.GetRadiusMax() < c.GetRadiusMin() {
		return fmt.Errorf("radius range [%f, %f] is invalid", c.GetRadiusMin(), c.GetRadiusMax())
	}
	if c.GetTemplateLength() < 1 {
		return fmt.Errorf("template_length must be at least 1, got %d", c.GetTemplateLength())
	}
	if c.GetSeedMaxRadius() < 1 {
		return fmt.Errorf("seed_max_radius must be at least 1, got %d", c.GetSeedMaxRadius())
	}
	if c.GetSeedMaxIterations() < 0 {
		return fmt.Errorf("seed_max_iterations must be non-negative, got %d", c.GetSeedMaxIterations())
	}
	lo, hi := c.GetSeedWindowLow(), c.GetSeedWindowHigh()
	if lo < 0 || hi < 0 || lo+hi >= 1 {
		return fmt.Errorf("seed window (%f, %f) must be non-negative and sum below 1", lo, hi)
	}
	if c.GetSeedLatticeSpacing() < 1 {
		return fmt.Errorf("seed_lattice_spacing must be at least 1, got %d", c.GetSeedLatticeSpacing())
	}
	if t := c.GetSeedThreshold(); t < 0 || t > 1 {
		return fmt.Errorf("seed_threshold must be between 0 and 1, got %f", t)
	}
	if c.GetMaxLength() < 1 {
		return fmt.Errorf("max_length must be at least 1, got %d", c.GetMaxLength())
	}
	if c.GetMaxGapSteps() < 0 {
		return fmt.Errorf("max_gap_steps must be non-negative, got %d", c.GetMaxGapSteps())
	}
	if a := c.GetAngleSmoothing(); a <= 0 || a > 1 {
		return fmt.Errorf("angle_smoothing must be in (0, 1], got %f", a)
	}
	if c.FrameBudget != nil && *c.FrameBudget != "" {
		if _, err := time.ParseDuration(*c.FrameBudget); err != nil {
			return fmt.Errorf("invalid frame_budget '%s': %w", *c.FrameBudget, err)
		}
	}
	if c.GetSoftDistance() > c.GetGateDistance() {
		return fmt.Errorf("soft_distance %f exceeds gate_distance %f", c.GetSoftDistance(), c.GetGateDistance())
	}
	if c.GetDistanceSamples() < 2 {
		return fmt.Errorf("distance_samples must be at least 2, got %d", c.GetDistanceSamples())
	}
	for name, p := range map[string]float64{
		"start_coherent": c.GetStartCoherent(),
		"coherent_stay":  c.GetCoherentStay(),
		"ambiguous_stay": c.GetAmbiguousStay(),
	} {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("%s must be strictly between 0 and 1, got %f", name, p)
		}
	}
	for name, row := range map[string][]float64{
		"emission_coherent":  c.GetEmissionCoherent(),
		"emission_ambiguous": c.GetEmissionAmbiguous(),
	} {
		if len(row) != 3 {
			return fmt.Errorf("%s must have 3 entries (good, weak, missing), got %d", name, len(row))
		}
		for _, p := range row {
			if p < 0 {
				return fmt.Errorf("%s has negative probability %f", name, p)
			}
		}
	}
	return nil
}

func (c *TuningConfig) GetOffsetStep() float64 {
	if c.OffsetStep == nil {
		return 0.25
	}
	return *c.OffsetStep
}

func (c *TuningConfig) GetOffsetMax() float64 {
	if c.OffsetMax == nil {
		return 1.0
	}
	return *c.OffsetMax
}

func (c *TuningConfig) GetAngleStepDeg() float64 {
	if c.AngleStepDeg == nil {
		return 10.0
	}
	return *c.AngleStepDeg
}

func (c *TuningConfig) GetRadiusMin() float64 {
	if c.RadiusMin == nil {
		return 0.5
	}
	return *c.RadiusMin
}

func (c *TuningConfig) GetRadiusMax() float64 {
	if c.RadiusMax == nil {
		return 3.0
	}
	return *c.RadiusMax
}

func (c *TuningConfig) GetRadiusStep() float64 {
	if c.RadiusStep == nil {
		return 0.25
	}
	return *c.RadiusStep
}

func (c *TuningConfig) GetHatRadius() float64 {
	if c.HatRadius == nil {
		return 1.5
	}
	return *c.HatRadius
}

func (c *TuningConfig) GetTemplateLength() int {
	if c.TemplateLength == nil {
		return 8
	}
	return *c.TemplateLength
}

func (c *TuningConfig) GetSeedMaxRadius() int {
	if c.SeedMaxRadius == nil {
		return 4
	}
	return *c.SeedMaxRadius
}

func (c *TuningConfig) GetSeedMaxIterations() int {
	if c.SeedMaxIterations == nil {
		return 2
	}
	return *c.SeedMaxIterations
}

func (c *TuningConfig) GetSeedWindowLow() float64 {
	if c.SeedWindowLow == nil {
		return 0
	}
	return *c.SeedWindowLow
}

func (c *TuningConfig) GetSeedWindowHigh() float64 {
	if c.SeedWindowHigh == nil {
		return 0
	}
	return *c.SeedWindowHigh
}

func (c *TuningConfig) GetSeedLatticeSpacing() int {
	if c.SeedLatticeSpacing == nil {
		return 4
	}
	return *c.SeedLatticeSpacing
}

func (c *TuningConfig) GetSeedThreshold() float64 {
	if c.SeedThreshold == nil {
		return 0.6
	}
	return *c.SeedThreshold
}

func (c *TuningConfig) GetSeedAccumThreshold() int {
	if c.SeedAccumThreshold == nil {
		return 1
	}
	return *c.SeedAccumThreshold
}

func (c *TuningConfig) GetSeedMinContrast() float64 {
	if c.SeedMinContrast == nil {
		return 5.0
	}
	return *c.SeedMinContrast
}

func (c *TuningConfig) GetMinSignal() float64 {
	if c.MinSignal == nil {
		return 5.0
	}
	return *c.MinSignal
}

func (c *TuningConfig) GetMaxLength() int {
	if c.MaxLength == nil {
		return 400
	}
	return *c.MaxLength
}

func (c *TuningConfig) GetMaxGapSteps() int {
	if c.MaxGapSteps == nil {
		return 3
	}
	return *c.MaxGapSteps
}

func (c *TuningConfig) GetMaxDeltaAngleDeg() float64 {
	if c.MaxDeltaAngleDeg == nil {
		return 10.0
	}
	return *c.MaxDeltaAngleDeg
}

func (c *TuningConfig) GetMaxDeltaRadius() float64 {
	if c.MaxDeltaRadius == nil {
		return 0.5
	}
	return *c.MaxDeltaRadius
}

func (c *TuningConfig) GetMaxDeltaOffset() float64 {
	if c.MaxDeltaOffset == nil {
		return 1.0
	}
	return *c.MaxDeltaOffset
}

func (c *TuningConfig) GetAngleSmoothing() float64 {
	if c.AngleSmoothing == nil {
		return 0.5
	}
	return *c.AngleSmoothing
}

func (c *TuningConfig) GetMinSegmentLength() int {
	if c.MinSegmentLength == nil {
		return 8
	}
	return *c.MinSegmentLength
}

// GetFrameBudget parses and returns the FrameBudget as a time.Duration.
// Zero means tracing a frame is not time limited.
func (c *TuningConfig) GetFrameBudget() time.Duration {
	if c.FrameBudget == nil || *c.FrameBudget == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.FrameBudget)
	if err != nil {
		return 0
	}
	return d
}

func (c *TuningConfig) GetObjectLevel() float64 {
	if c.ObjectLevel == nil {
		return 100
	}
	return *c.ObjectLevel
}

func (c *TuningConfig) GetObjectMinSize() int {
	if c.ObjectMinSize == nil {
		return 20
	}
	return *c.ObjectMinSize
}

func (c *TuningConfig) GetTraceOnObjectsOnly() bool {
	if c.TraceOnObjectsOnly == nil {
		return false
	}
	return *c.TraceOnObjectsOnly
}

func (c *TuningConfig) GetGateDistance() float64 {
	if c.GateDistance == nil {
		return 20.0
	}
	return *c.GateDistance
}

func (c *TuningConfig) GetSoftDistance() float64 {
	if c.SoftDistance == nil {
		return 5.0
	}
	return *c.SoftDistance
}

func (c *TuningConfig) GetMaxMisses() int {
	if c.MaxMisses == nil {
		return 3
	}
	return *c.MaxMisses
}

func (c *TuningConfig) GetDistanceSamples() int {
	if c.DistanceSamples == nil {
		return 16
	}
	return *c.DistanceSamples
}

func (c *TuningConfig) GetStartCoherent() float64 {
	if c.StartCoherent == nil {
		return 0.9
	}
	return *c.StartCoherent
}

func (c *TuningConfig) GetCoherentStay() float64 {
	if c.CoherentStay == nil {
		return 0.95
	}
	return *c.CoherentStay
}

func (c *TuningConfig) GetAmbiguousStay() float64 {
	if c.AmbiguousStay == nil {
		return 0.7
	}
	return *c.AmbiguousStay
}

// GetEmissionCoherent returns P(good, weak, missing | coherent).
func (c *TuningConfig) GetEmissionCoherent() []float64 {
	if c.EmissionCoherent == nil {
		return []float64{0.8, 0.15, 0.05}
	}
	return *c.EmissionCoherent
}

// GetEmissionAmbiguous returns P(good, weak, missing | ambiguous).
func (c *TuningConfig) GetEmissionAmbiguous() []float64 {
	if c.EmissionAmbiguous == nil {
		return []float64{0.1, 0.5, 0.4}
	}
	return *c.EmissionAmbiguous
}
