package l4segments

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
	"github.com/banshee-data/whisker.trace/internal/whisk/l2field"
	"github.com/banshee-data/whisker.trace/internal/whisk/l3seeds"
)

// ErrNoTrace is returned when no ridge can be followed from a seed.
var ErrNoTrace = errors.New("no traceable ridge at seed")

// Tracer follows ridges from seeds. It is immutable and safe for
// concurrent use as long as each goroutine passes its own Scratch.
type Tracer struct {
	cfg     TracingConfig
	sampler *l2field.Sampler
	seeds   *l3seeds.Detector

	angleStep float64
}

// NewTracer builds the sampler and seed detector from cfg.
func NewTracer(cfg TracingConfig) (*Tracer, error) {
	if cfg.MaxLength < 1 {
		return nil, fmt.Errorf("max length must be at least 1, got %d", cfg.MaxLength)
	}
	if cfg.AngleSmoothing <= 0 || cfg.AngleSmoothing > 1 {
		return nil, fmt.Errorf("angle smoothing must be in (0, 1], got %g", cfg.AngleSmoothing)
	}
	det, err := l3seeds.NewDetector(cfg.Seeds, cfg.Sampler)
	if err != nil {
		return nil, fmt.Errorf("seed detector: %w", err)
	}
	step := cfg.Sampler.AngleStep
	if cfg.MaxDeltaAngle > 0 {
		step = math.Min(step, cfg.MaxDeltaAngle/4)
	}
	return &Tracer{
		cfg:       cfg,
		sampler:   l2field.NewSampler(cfg.Sampler),
		seeds:     det,
		angleStep: step,
	}, nil
}

// Config returns the tracer configuration.
func (t *Tracer) Config() TracingConfig { return t.cfg }

// Detector returns the seed detector built from the same configuration.
func (t *Tracer) Detector() *l3seeds.Detector { return t.seeds }

// Sampler returns the field sampler built from the same configuration.
func (t *Tracer) Sampler() *l2field.Sampler { return t.sampler }

// Scratch holds per-worker buffers reused across traces.
type Scratch struct {
	fwd, back []Sample
	offsets   []float64
	angles    []float64
	radii     []float64
}

// NewScratch allocates buffers sized for one trace.
func (t *Tracer) NewScratch() *Scratch {
	return &Scratch{
		fwd:  make([]Sample, 0, t.cfg.MaxLength),
		back: make([]Sample, 0, t.cfg.MaxLength),
	}
}

type fit struct {
	x, y, theta, r, score float64
}

// around lists center, center-step, center+step, ... out to ±delta,
// dropping values outside [lo, hi]. The centre comes first so ties favour
// the smallest change.
func around(dst []float64, center, delta, step, lo, hi float64) []float64 {
	dst = append(dst[:0], center)
	if step <= 0 || delta <= 0 {
		return dst
	}
	for k := 1; float64(k)*step <= delta+1e-9; k++ {
		for _, v := range [2]float64{center - float64(k)*step, center + float64(k)*step} {
			if v >= lo-1e-9 && v <= hi+1e-9 {
				dst = append(dst, v)
			}
		}
	}
	return dst
}

// search finds the strongest detector response near (x, y). The heading
// theta is a direction, so offsets are measured along its left normal.
func (t *Tracer) search(img *l1image.Image, sc *Scratch, x, y, theta, r, dOffset, dAngle, dRadius float64) fit {
	sc.offsets = around(sc.offsets, 0, dOffset, t.cfg.Sampler.OffsetStep, -dOffset, dOffset)
	sc.angles = around(sc.angles, theta, dAngle, t.angleStep, math.Inf(-1), math.Inf(1))
	sc.radii = around(sc.radii, r, dRadius, t.cfg.Sampler.RadiusStep, t.cfg.Sampler.RadiusMin, t.cfg.Sampler.RadiusMax)

	best := fit{x: x, y: y, theta: theta, r: r, score: math.Inf(-1)}
	for _, a := range sc.angles {
		nx, ny := -math.Sin(a), math.Cos(a)
		for _, o := range sc.offsets {
			cx, cy := x+o*nx, y+o*ny
			for _, rr := range sc.radii {
				v := t.sampler.Evaluate(img, cx, cy, a, rr)
				if v > best.score {
					best = fit{x: cx, y: cy, theta: a, r: rr, score: v}
				}
			}
		}
	}
	return best
}

// wrapAngle maps a to (-π, π].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Trace follows the ridge through seed in both directions. The result has
// ID 0 and Time 0; callers assign both. ErrNoTrace is returned when the
// ridge at the seed is weaker than MinSignal.
func (t *Tracer) Trace(img *l1image.Image, seed l3seeds.Seed, sc *Scratch) (*Segment, error) {
	if sc == nil {
		sc = t.NewScratch()
	}
	sx, sy := float64(seed.X), float64(seed.Y)
	mid := (t.cfg.Sampler.RadiusMin + t.cfg.Sampler.RadiusMax) / 2
	halfRange := (t.cfg.Sampler.RadiusMax - t.cfg.Sampler.RadiusMin) / 2
	start := t.search(img, sc, sx, sy, seed.Angle(),
		mid,
		math.Max(t.cfg.Sampler.OffsetMax, t.cfg.MaxDeltaOffset),
		2*t.cfg.MaxDeltaAngle,
		halfRange)
	if start.score < t.cfg.MinSignal {
		return nil, fmt.Errorf("%w: (%d, %d) response %.2f below %.2f",
			ErrNoTrace, seed.X, seed.Y, start.score, t.cfg.MinSignal)
	}

	sc.fwd = t.walk(img, sc, start, start.theta, sc.fwd[:0])
	sc.back = t.walk(img, sc, start, start.theta+math.Pi, sc.back[:0])

	samples := make([]Sample, 0, len(sc.back)+1+len(sc.fwd))
	for i := len(sc.back) - 1; i >= 0; i-- {
		samples = append(samples, sc.back[i])
	}
	samples = append(samples, Sample{
		X: float32(start.x), Y: float32(start.y),
		Thick: float32(2 * start.r), Score: float32(start.score),
	})
	samples = append(samples, sc.fwd...)
	return &Segment{Samples: samples}, nil
}

// walk steps one pixel at a time along heading until the signal stays
// below MinSignal for more than MaxGapSteps steps, MaxLength steps are
// taken, or the detector footprint at the current radius would reach past
// the image edge. Samples after the last step with enough signal are
// dropped.
func (t *Tracer) walk(img *l1image.Image, sc *Scratch, start fit, heading float64, out []Sample) []Sample {
	cur := start
	kept := len(out)
	gap := 0
	for step := 0; step < t.cfg.MaxLength; step++ {
		nx := cur.x + math.Cos(heading)
		ny := cur.y + math.Sin(heading)
		if !img.InF(nx, ny, t.sampler.Margin(cur.r)) {
			break
		}
		f := t.search(img, sc, nx, ny, heading, cur.r, t.cfg.MaxDeltaOffset, t.cfg.MaxDeltaAngle, t.cfg.MaxDeltaRadius)
		if f.score < t.cfg.MinSignal {
			gap++
			if gap > t.cfg.MaxGapSteps {
				break
			}
			// tunnel straight through the gap
			cur = fit{x: nx, y: ny, theta: heading, r: cur.r, score: f.score}
		} else {
			gap = 0
			heading += t.cfg.AngleSmoothing * wrapAngle(f.theta-heading)
			cur = f
		}
		if !img.InF(cur.x, cur.y, t.sampler.Margin(cur.r)) {
			break
		}
		out = append(out, Sample{
			X: float32(cur.x), Y: float32(cur.y),
			Thick: float32(2 * cur.r), Score: float32(f.score),
		})
		if gap == 0 {
			kept = len(out)
		}
	}
	return out[:kept]
}
