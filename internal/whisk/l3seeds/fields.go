package l3seeds

import (
	"math"
	"sort"

	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
)

// Fields are the seed rasters. Each successful seed adds one hit at the
// pixel it converged to, and adds its slope and statistic to the running
// sums there. Call Normalize before reading Slope or Stat as averages.
type Fields struct {
	Width, Height int
	Hist          []int
	Slope         []float32
	Stat          []float32

	normalized bool
}

// NewFields returns zeroed rasters for a w×h image.
func NewFields(w, h int) *Fields {
	return &Fields{
		Width:  w,
		Height: h,
		Hist:   make([]int, w*h),
		Slope:  make([]float32, w*h),
		Stat:   make([]float32, w*h),
	}
}

func (f *Fields) add(p int, e Estimate) {
	f.Hist[p]++
	f.Slope[p] += float32(e.Slope)
	f.Stat[p] += float32(e.Stat)
}

// Normalize divides the slope and statistic sums by the hit count. Pixels
// without hits stay zero. Calling it twice has no further effect.
func (f *Fields) Normalize() {
	if f.normalized {
		return
	}
	for p, n := range f.Hist {
		if n == 0 {
			continue
		}
		f.Slope[p] /= float32(n)
		f.Stat[p] /= float32(n)
	}
	f.normalized = true
}

// Normalized reports whether Normalize has run.
func (f *Fields) Normalized() bool { return f.normalized }

// Hits returns the total number of accumulated seeds.
func (f *Fields) Hits() int {
	n := 0
	for _, h := range f.Hist {
		n += h
	}
	return n
}

func (d *Detector) accumulate(img *l1image.Image, candidates func(yield func(p int))) *Fields {
	f := NewFields(img.Width, img.Height)
	sc := d.newScratch()
	candidates(func(p int) {
		seed, est, ok := d.seedAt(img, p, sc)
		if !ok {
			return
		}
		f.add(img.Index(seed.X, seed.Y), est)
	})
	return f
}

// ComputeFields runs seed estimation from every pixel.
func (d *Detector) ComputeFields(img *l1image.Image) *Fields {
	return d.accumulate(img, func(yield func(int)) {
		for p := range img.Pix {
			yield(p)
		}
	})
}

// ComputeFieldsOnGrid runs seed estimation from a square lattice with the
// given spacing, offset by half a cell from the image corner. A spacing
// below 1 uses the configured lattice spacing.
func (d *Detector) ComputeFieldsOnGrid(img *l1image.Image, spacing int) *Fields {
	if spacing < 1 {
		spacing = max(d.cfg.LatticeSpacing, 1)
	}
	return d.accumulate(img, func(yield func(int)) {
		for y := spacing / 2; y < img.Height; y += spacing {
			for x := spacing / 2; x < img.Width; x += spacing {
				yield(img.Index(x, y))
			}
		}
	})
}

// ComputeFieldsOnContour runs seed estimation from each pixel of c.
func (d *Detector) ComputeFieldsOnContour(img *l1image.Image, c *l1image.Contour) *Fields {
	return d.accumulate(img, func(yield func(int)) {
		for _, p := range c.Tour {
			if p >= 0 && p < len(img.Pix) {
				yield(p)
			}
		}
	})
}

// ComputeFieldsOnObjects runs seed estimation from every pixel of every
// contour in om.
func (d *Detector) ComputeFieldsOnObjects(img *l1image.Image, om *l1image.ObjectMap) *Fields {
	return d.accumulate(img, func(yield func(int)) {
		for i := range om.Contours {
			for _, p := range om.Contours[i].Tour {
				if p >= 0 && p < len(img.Pix) {
					yield(p)
				}
			}
		}
	})
}

// Candidate is a seed selected from the rasters with the evidence behind it.
type Candidate struct {
	Seed
	Stat float64
	Hits int
}

// Candidates normalizes f and returns every pixel with at least
// AccumThreshold hits and a mean statistic of at least SeedThreshold,
// strongest first. Equal statistics keep raster order.
func (d *Detector) Candidates(f *Fields) []Candidate {
	f.Normalize()
	out := []Candidate{}
	for p, n := range f.Hist {
		if n == 0 || n < d.cfg.AccumThreshold || float64(f.Stat[p]) < d.cfg.SeedThreshold {
			continue
		}
		m := float64(f.Slope[p])
		out = append(out, Candidate{
			Seed: Seed{X: p % f.Width, Y: p / f.Width, DX: math.Cos(m), DY: math.Sin(m)},
			Stat: float64(f.Stat[p]),
			Hits: n,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stat > out[j].Stat })
	return out
}

// SeedsFromFields is Candidates without the evidence.
func (d *Detector) SeedsFromFields(f *Fields) []Seed {
	cands := d.Candidates(f)
	seeds := make([]Seed, len(cands))
	for i, c := range cands {
		seeds[i] = c.Seed
	}
	return seeds
}

// FindSeeds returns the seed vector for one contour. The result is empty,
// not nil, when nothing qualifies.
func (d *Detector) FindSeeds(img *l1image.Image, c *l1image.Contour) []Seed {
	return d.SeedsFromFields(d.ComputeFieldsOnContour(img, c))
}

// BestSeed returns the strongest seed on c.
func (d *Detector) BestSeed(img *l1image.Image, c *l1image.Contour) (Seed, bool) {
	cands := d.Candidates(d.ComputeFieldsOnContour(img, c))
	if len(cands) == 0 {
		return Seed{}, false
	}
	return cands[0].Seed, true
}
