package l3seeds

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
	"github.com/banshee-data/whisker.trace/internal/whisk/l2field"
)

// Seed is a ridge point with a unit direction. The direction has no
// forward or backward sense: (DX, DY) and (-DX, -DY) describe the same seed.
type Seed struct {
	X, Y   int
	DX, DY float64
}

// Angle returns the direction angle in (-π, π].
func (s Seed) Angle() float64 { return math.Atan2(s.DY, s.DX) }

// Estimate carries the per-point quantities that feed the seed rasters.
type Estimate struct {
	// Slope is the ridge angle in (-π/2, π/2].
	Slope float64
	// Stat is the anisotropy 1 - λmin/λmax of the darkness-weighted
	// second moments, in [0, 1].
	Stat float64
	// Contrast is the strongest line detector response at the seed.
	Contrast float64
}

// Detector computes seeds. It is immutable and safe for concurrent use;
// every call allocates its own scratch.
type Detector struct {
	cfg     SeedConfig
	sampler *l2field.Sampler
}

// NewDetector validates cfg and builds the single-offset sampler used to
// measure seed contrast.
func NewDetector(cfg SeedConfig, sc l2field.SamplerConfig) (*Detector, error) {
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRadius < 1 {
		return nil, fmt.Errorf("seed max radius must be at least 1, got %d", cfg.MaxRadius)
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("seed max iterations must be non-negative, got %d", cfg.MaxIterations)
	}
	sc.OffsetMax = 0
	return &Detector{cfg: cfg, sampler: l2field.NewSampler(sc)}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() SeedConfig { return d.cfg }

// Windowed returns a copy of d whose statistic only counts samples inside
// the (low, high) darkness window.
func (d *Detector) Windowed(low, high float64) (*Detector, error) {
	w := Window{Low: low, High: high}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	cp := *d
	cp.cfg.Window = w
	return &cp, nil
}

type scratch struct {
	stack      *l2field.Stack
	xs, ys, ws []float64
	sorted     []float64
}

func (d *Detector) newScratch() *scratch {
	n := (2*d.cfg.MaxRadius + 1) * (2*d.cfg.MaxRadius + 1)
	return &scratch{
		stack:  d.sampler.NewStack(),
		xs:     make([]float64, 0, n),
		ys:     make([]float64, 0, n),
		ws:     make([]float64, 0, n),
		sorted: make([]float64, 0, n),
	}
}

// SeedFromPoint estimates a seed near pixel p. The second result is false
// when there is no ridge there.
func (d *Detector) SeedFromPoint(img *l1image.Image, p int) (Seed, bool) {
	s, _, ok := d.seedAt(img, p, d.newScratch())
	return s, ok
}

// SeedFromPointEx is SeedFromPoint that also reports the slope, statistic
// and contrast behind the seed.
func (d *Detector) SeedFromPointEx(img *l1image.Image, p int) (Seed, Estimate, bool) {
	return d.seedAt(img, p, d.newScratch())
}

func (d *Detector) seedAt(img *l1image.Image, p int, sc *scratch) (Seed, Estimate, bool) {
	cx, cy := img.XY(p)
	var theta, anis float64
	for it := 0; ; it++ {
		var ok bool
		theta, anis, ok = d.moments(img, cx, cy, sc)
		if !ok {
			return Seed{}, Estimate{}, false
		}
		if it >= d.cfg.MaxIterations {
			break
		}
		nx, ny := d.recentre(img, cx, cy, theta)
		if nx == cx && ny == cy {
			break
		}
		cx, cy = nx, ny
	}

	d.sampler.Response(img, img.Index(cx, cy), sc.stack)
	_, _, _, best := sc.stack.Argmax()
	contrast := float64(best)
	if contrast < d.cfg.MinContrast {
		return Seed{}, Estimate{}, false
	}

	seed := Seed{X: cx, Y: cy, DX: math.Cos(theta), DY: math.Sin(theta)}
	return seed, Estimate{Slope: theta, Stat: anis, Contrast: contrast}, true
}

// moments returns the principal axis angle and anisotropy of the darkness
// in the disk of radius MaxRadius around (cx, cy).
func (d *Detector) moments(img *l1image.Image, cx, cy int, sc *scratch) (theta, anis float64, ok bool) {
	r := d.cfg.MaxRadius
	xs, ys, ws := sc.xs[:0], sc.ys[:0], sc.ws[:0]
	hi := math.Inf(-1)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r || !img.In(cx+dx, cy+dy) {
				continue
			}
			v := float64(img.Pix[img.Index(cx+dx, cy+dy)])
			hi = math.Max(hi, v)
			xs = append(xs, float64(dx))
			ys = append(ys, float64(dy))
			ws = append(ws, v)
		}
	}
	sc.xs, sc.ys, sc.ws = xs, ys, ws
	if len(ws) < 3 {
		return 0, 0, false
	}
	for i := range ws {
		ws[i] = hi - ws[i]
	}

	if !d.cfg.Window.IsZero() {
		sorted := append(sc.sorted[:0], ws...)
		sort.Float64s(sorted)
		sc.sorted = sorted
		lo := stat.Quantile(d.cfg.Window.Low, stat.Empirical, sorted, nil)
		up := stat.Quantile(1-d.cfg.Window.High, stat.Empirical, sorted, nil)
		n := 0
		for i, w := range ws {
			if w < lo || w > up {
				continue
			}
			xs[n], ys[n], ws[n] = xs[i], ys[i], w
			n++
		}
		xs, ys, ws = xs[:n], ys[:n], ws[:n]
		if n < 3 {
			return 0, 0, false
		}
	}

	if floats.Sum(ws) <= 1 {
		return 0, 0, false
	}
	sxx := stat.Covariance(xs, xs, ws)
	syy := stat.Covariance(ys, ys, ws)
	sxy := stat.Covariance(xs, ys, ws)

	half := (sxx + syy) / 2
	disc := math.Hypot((sxx-syy)/2, sxy)
	lmax, lmin := half+disc, half-disc
	if lmax <= 0 {
		return 0, 0, false
	}
	anis = math.Min(1, math.Max(0, 1-lmin/lmax))
	theta = 0.5 * math.Atan2(2*sxy, sxx-syy)
	return theta, anis, true
}

// reach is how far recentre looks along the normal: MaxRadius, widened to
// half the lattice spacing so no point between lattice sites is out of range.
func (d *Detector) reach() int {
	return max(d.cfg.MaxRadius, (d.cfg.LatticeSpacing+1)/2)
}

// recentre moves (cx, cy) to the darkest point within reach along the
// normal to theta. Ties keep the candidate closest to the current centre.
func (d *Detector) recentre(img *l1image.Image, cx, cy int, theta float64) (int, int) {
	nx, ny := -math.Sin(theta), math.Cos(theta)
	bestK := 0.0
	bestV := img.Sample(float64(cx), float64(cy))
	for step := 1; step <= d.reach(); step++ {
		for _, k := range [2]float64{-float64(step), float64(step)} {
			v := img.Sample(float64(cx)+k*nx, float64(cy)+k*ny)
			if v < bestV {
				bestV, bestK = v, k
			}
		}
	}
	x := int(math.Round(float64(cx) + bestK*nx))
	y := int(math.Round(float64(cy) + bestK*ny))
	x = min(max(x, 0), img.Width-1)
	y = min(max(y, 0), img.Height-1)
	return x, y
}
