package l3seeds

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/whisker.trace/internal/testutil"
	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
	"github.com/banshee-data/whisker.trace/internal/whisk/l2field"
)

func newDetector(t *testing.T, mutate func(*SeedConfig)) *Detector {
	t.Helper()
	cfg := DefaultSeedConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDetector(cfg, l2field.DefaultSamplerConfig())
	require.NoError(t, err)
	return d
}

func lineImage(t *testing.T, noise float64) *l1image.Image {
	t.Helper()
	f := testutil.NewFrame(40, 40, 200)
	f.DrawLine(2, 20, 37, 20, 2, 20)
	if noise > 0 {
		f.AddNoise(1, noise)
	}
	im, err := l1image.FromGray8(f.Width, f.Height, f.Pix)
	require.NoError(t, err)
	return im
}

func TestNewDetectorValidation(t *testing.T) {
	sc := l2field.DefaultSamplerConfig()

	cfg := DefaultSeedConfig()
	cfg.Window = Window{Low: 0.6, High: 0.4}
	_, err := NewDetector(cfg, sc)
	assert.True(t, errors.Is(err, ErrWindow))

	cfg = DefaultSeedConfig()
	cfg.MaxRadius = 0
	_, err = NewDetector(cfg, sc)
	assert.Error(t, err)

	d := newDetector(t, nil)
	_, err = d.Windowed(0.5, 0.5)
	assert.ErrorIs(t, err, ErrWindow)
}

func TestSeedFromPoint_FlatImageHasNoSeed(t *testing.T) {
	f := testutil.NewFrame(20, 20, 90)
	im, _ := l1image.FromGray8(f.Width, f.Height, f.Pix)
	d := newDetector(t, nil)

	_, ok := d.SeedFromPoint(im, im.Index(10, 10))
	assert.False(t, ok)
}

func TestSeedFromPoint_ConvergesOntoLine(t *testing.T) {
	im := lineImage(t, 0)
	d := newDetector(t, nil)

	seed, est, ok := d.SeedFromPointEx(im, im.Index(20, 22))
	require.True(t, ok)

	assert.Equal(t, 20, seed.X)
	assert.InDelta(t, 20, seed.Y, 1, "seed should land on the dark core")
	assert.InDelta(t, 1.0, math.Abs(seed.DX), 0.02)
	assert.InDelta(t, 0.0, est.Slope, 0.05)
	assert.Greater(t, est.Stat, 0.6)
	assert.LessOrEqual(t, est.Stat, 1.0)
	assert.Greater(t, est.Contrast, 5.0)

	// a direction is a unit vector, never zero
	assert.InDelta(t, 1.0, math.Hypot(seed.DX, seed.DY), 1e-9)
}

func TestSeedFromPoint_MoreIterationsSettle(t *testing.T) {
	im := lineImage(t, 0)
	d := newDetector(t, func(c *SeedConfig) { c.MaxIterations = 4 })

	seed, ok := d.SeedFromPoint(im, im.Index(12, 23))
	require.True(t, ok)
	assert.InDelta(t, 20, seed.Y, 1)
}

func TestSeedFromPoint_Windowed(t *testing.T) {
	im := lineImage(t, 0)
	d, err := newDetector(t, nil).Windowed(0.2, 0.2)
	require.NoError(t, err)
	assert.Equal(t, Window{Low: 0.2, High: 0.2}, d.Config().Window)

	seed, ok := d.SeedFromPoint(im, im.Index(20, 20))
	require.True(t, ok)
	assert.Less(t, math.Abs(seed.DY), 0.2)
}

func TestNormalizeDividesByHits(t *testing.T) {
	im := lineImage(t, 3)
	d := newDetector(t, nil)

	f := d.ComputeFields(im)
	require.Greater(t, f.Hits(), 0)
	rawStat := append([]float32(nil), f.Stat...)
	rawSlope := append([]float32(nil), f.Slope...)

	f.Normalize()
	require.True(t, f.Normalized())
	for p, n := range f.Hist {
		if n == 0 {
			assert.Zero(t, f.Stat[p])
			assert.Zero(t, f.Slope[p])
			continue
		}
		assert.InDelta(t, rawStat[p]/float32(n), f.Stat[p], 1e-6)
		assert.InDelta(t, rawSlope[p]/float32(n), f.Slope[p], 1e-6)
	}

	// a second call changes nothing
	before := append([]float32(nil), f.Stat...)
	f.Normalize()
	assert.Equal(t, before, f.Stat)
}

func TestComputeFieldsOnGrid(t *testing.T) {
	im := lineImage(t, 0)
	d := newDetector(t, nil)

	f := d.ComputeFieldsOnGrid(im, 8)
	assert.Equal(t, 5, f.Hits(), "only the lattice row on the line should seed")
	for p, n := range f.Hist {
		if n > 0 {
			assert.Equal(t, 20, p/im.Width)
		}
	}

	seeds := d.SeedsFromFields(f)
	require.Len(t, seeds, 5)
	for _, s := range seeds {
		assert.Greater(t, math.Abs(s.DX), 0.99)
	}
}

func TestComputeFieldsOnDefaultGrid(t *testing.T) {
	im := lineImage(t, 0)
	d := newDetector(t, nil)

	// rows 18 and 22 straddle the line and both converge onto it
	f := d.ComputeFieldsOnGrid(im, 0)
	assert.GreaterOrEqual(t, f.Hits(), 16)
	for p, n := range f.Hist {
		if n > 0 {
			assert.InDelta(t, 20, p/im.Width, 1)
		}
	}
}

func TestRecentreReachCoversLattice(t *testing.T) {
	assert.Equal(t, 4, newDetector(t, nil).reach())
	assert.Equal(t, 6, newDetector(t, func(c *SeedConfig) { c.LatticeSpacing = 12 }).reach())
	assert.Equal(t, 4, newDetector(t, func(c *SeedConfig) { c.LatticeSpacing = 1 }).reach())
}

// A noisy line midway between two sites of a coarse lattice is still
// reached, because recentring looks out to half the lattice spacing.
func TestSeedFromPoint_NoisyLineBetweenSites(t *testing.T) {
	d := newDetector(t, func(c *SeedConfig) { c.MaxIterations = 3 })
	for _, noise := range []int64{2, 7} {
		f := testutil.NewFrame(64, 64, 200)
		f.DrawLine(32, 2, 32, 61, 2, 20)
		f.AddNoise(noise, 10)
		im, err := l1image.FromGray8(f.Width, f.Height, f.Pix)
		require.NoError(t, err)

		found := 0
		for y := 6; y < 60; y += 4 {
			for _, x := range []int{30, 34} {
				seed, ok := d.SeedFromPoint(im, im.Index(x, y))
				if !ok {
					continue
				}
				if math.Abs(float64(seed.X-32)) <= 1 {
					found++
				}
			}
		}
		assert.Greater(t, found, 10, "noise seed %d", noise)
	}
}

func TestCandidatesOrderAndThresholds(t *testing.T) {
	d := newDetector(t, func(c *SeedConfig) {
		c.AccumThreshold = 2
		c.SeedThreshold = 0.5
	})
	f := NewFields(4, 1)
	f.add(0, Estimate{Stat: 0.9})
	f.add(0, Estimate{Stat: 0.7}) // mean 0.8, two hits
	f.add(1, Estimate{Stat: 1.0}) // one hit, below accumulation threshold
	f.add(2, Estimate{Stat: 0.95})
	f.add(2, Estimate{Stat: 0.95, Slope: math.Pi / 2})
	f.add(3, Estimate{Stat: 0.2})
	f.add(3, Estimate{Stat: 0.2}) // below statistic threshold

	cands := d.Candidates(f)
	require.Len(t, cands, 2)
	assert.Equal(t, 2, cands[0].X)
	assert.Equal(t, 2, cands[0].Hits)
	assert.InDelta(t, 0.95, cands[0].Stat, 1e-6)
	assert.InDelta(t, math.Cos(math.Pi/4), cands[0].DX, 1e-6)
	assert.Equal(t, 0, cands[1].X)
	assert.InDelta(t, 0.8, cands[1].Stat, 1e-6)
}

func TestFindSeedsOnContour(t *testing.T) {
	im := lineImage(t, 0)
	d := newDetector(t, nil)
	om := l1image.ExtractObjects(im, 100, 20)
	require.Len(t, om.Contours, 1)

	seeds := d.FindSeeds(im, &om.Contours[0])
	require.NotEmpty(t, seeds)

	best, ok := d.BestSeed(im, &om.Contours[0])
	require.True(t, ok)
	assert.Equal(t, seeds[0], best)
	assert.InDelta(t, 20, best.Y, 1)

	objects := d.ComputeFieldsOnObjects(im, om)
	contour := d.ComputeFieldsOnContour(im, &om.Contours[0])
	assert.Equal(t, contour.Hist, objects.Hist)

	empty := &l1image.Contour{}
	assert.NotNil(t, d.FindSeeds(im, empty))
	assert.Empty(t, d.FindSeeds(im, empty))
	_, ok = d.BestSeed(im, empty)
	assert.False(t, ok)
}
