package l5tracks

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

// resample places n points at equal arc-length spacing along s.
func resample(s *l4segments.Segment, n int, xs, ys []float64) {
	m := s.Len()
	if m == 1 {
		for i := 0; i < n; i++ {
			xs[i], ys[i] = float64(s.Samples[0].X), float64(s.Samples[0].Y)
		}
		return
	}
	arc := make([]float64, m)
	for i := 1; i < m; i++ {
		a, b := s.Samples[i-1], s.Samples[i]
		arc[i] = math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
	}
	floats.CumSum(arc, arc)
	length := arc[m-1]

	k := 0
	for i := 0; i < n; i++ {
		target := length * float64(i) / float64(n-1)
		for k < m-2 && arc[k+1] < target {
			k++
		}
		a, b := s.Samples[k], s.Samples[k+1]
		f := 0.0
		if seg := arc[k+1] - arc[k]; seg > 0 {
			f = math.Min(1, math.Max(0, (target-arc[k])/seg))
		}
		xs[i] = float64(a.X) + f*float64(b.X-a.X)
		ys[i] = float64(a.Y) + f*float64(b.Y-a.Y)
	}
}

// Distance is the mean point-to-point distance between a and b after both
// are resampled to n points by arc length, minimized over the two relative
// orientations. It is +Inf when either segment is empty.
func Distance(a, b *l4segments.Segment, n int) float64 {
	if a == nil || b == nil || a.Len() == 0 || b.Len() == 0 {
		return math.Inf(1)
	}
	n = max(n, 2)
	ax, ay := make([]float64, n), make([]float64, n)
	bx, by := make([]float64, n), make([]float64, n)
	resample(a, n, ax, ay)
	resample(b, n, bx, by)

	var same, flipped float64
	for i := 0; i < n; i++ {
		same += math.Hypot(ax[i]-bx[i], ay[i]-by[i])
		flipped += math.Hypot(ax[i]-bx[n-1-i], ay[i]-by[n-1-i])
	}
	return math.Min(same, flipped) / float64(n)
}
