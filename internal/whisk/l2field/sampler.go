package l2field

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
)

// acrossStep is the spacing of detector samples normal to the line.
const acrossStep = 0.5

// Sampler evaluates an oriented line detector. A dark line on a lighter
// background gives a positive response equal to the mean of the two flank
// bands minus the mean of the core band.
//
// A Sampler is immutable after construction and safe for concurrent use.
type Sampler struct {
	cfg     SamplerConfig
	offsets []float64
	angles  []float64
	radii   []float64
	half    int
}

// NewSampler precomputes the tick arrays for cfg.
func NewSampler(cfg SamplerConfig) *Sampler {
	s := &Sampler{
		cfg:  cfg,
		half: max(cfg.TemplateLength/2, 1),
	}
	s.offsets = ticks(-cfg.OffsetMax, cfg.OffsetMax, cfg.OffsetStep)
	s.radii = ticks(cfg.RadiusMin, cfg.RadiusMax, cfg.RadiusStep)
	na := max(int(math.Round(math.Pi/cfg.AngleStep)), 1)
	s.angles = make([]float64, na)
	for i := range s.angles {
		s.angles[i] = -math.Pi/2 + float64(i)*math.Pi/float64(na)
	}
	return s
}

// ticks returns lo, lo+step, ... up to and including hi (within rounding).
func ticks(lo, hi, step float64) []float64 {
	n := 1
	if step > 0 && hi > lo {
		n = int(math.Floor((hi-lo)/step+1e-9)) + 1
	}
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, lo+float64(n-1)*step)
}

// Config returns the configuration the sampler was built from.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Extents returns the stack dimensions in [offset][angle][radius] order.
func (s *Sampler) Extents() (noffsets, nangles, nradii int) {
	return len(s.offsets), len(s.angles), len(s.radii)
}

// Ticks returns the physical value of each index along the radius, angle
// (radians) and offset (pixels) axes. The slices are shared; do not modify.
func (s *Sampler) Ticks() (radius, angle, offset []float64) {
	return s.radii, s.angles, s.offsets
}

// HalfLength is the number of samples taken on each side of the centre
// along the line direction.
func (s *Sampler) HalfLength() int { return s.half }

// Margin is the distance from a centre to the furthest sample the detector
// reads at radius r.
func (s *Sampler) Margin(r float64) float64 {
	return math.Hypot(float64(s.half), r+s.cfg.HatRadius)
}

// Evaluate returns the detector response for a line through (x, y) at angle
// theta with core half-width r. Samples outside the image clamp to its edge.
func (s *Sampler) Evaluate(img *l1image.Image, x, y, theta, r float64) float64 {
	c, sn := math.Cos(theta), math.Sin(theta)
	outer := r + s.cfg.HatRadius
	kmax := int(math.Ceil(outer / acrossStep))

	var core, flank float64
	var nc, nf int
	for i := -s.half; i <= s.half; i++ {
		ax := x + float64(i)*c
		ay := y + float64(i)*sn
		for k := -kmax; k <= kmax; k++ {
			u := float64(k) * acrossStep
			au := math.Abs(u)
			if au > outer {
				continue
			}
			v := img.Sample(ax-u*sn, ay+u*c)
			if au <= r {
				core += v
				nc++
			} else {
				flank += v
				nf++
			}
		}
	}
	if nc == 0 || nf == 0 {
		return 0
	}
	return flank/float64(nf) - core/float64(nc)
}

// Response fills st with the detector response at pixel p over every
// (offset, angle, radius) tick. The offset moves the centre along the line
// normal. st must come from NewStack on the same sampler.
func (s *Sampler) Response(img *l1image.Image, p int, st *Stack) {
	px, py := img.XY(p)
	x0, y0 := float64(px), float64(py)
	i := 0
	for _, o := range s.offsets {
		for _, a := range s.angles {
			nx, ny := -math.Sin(a), math.Cos(a)
			cx, cy := x0+o*nx, y0+o*ny
			for _, r := range s.radii {
				st.Data[i] = float32(s.Evaluate(img, cx, cy, a, r))
				i++
			}
		}
	}
}
