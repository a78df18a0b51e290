// Package testutil provides shared test helpers and synthetic whisker frames.
//
// Frames are plain 8-bit sample grids so that any package, including the
// image package itself, can build fixtures without an import cycle.
package testutil

import (
	"math"
	"math/rand"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta fails the test if got and want differ by more than delta.
func AssertInDelta(t *testing.T, got, want, delta float64, what string) {
	t.Helper()
	if math.Abs(got-want) > delta {
		t.Errorf("%s = %g, want %g ± %g", what, got, want, delta)
	}
}

// Frame is an 8-bit grayscale test image, row-major.
type Frame struct {
	Width, Height int
	Pix           []uint8
}

// NewFrame returns a w×h frame filled with background level bg.
func NewFrame(w, h int, bg uint8) *Frame {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = bg
	}
	return &Frame{Width: w, Height: h, Pix: pix}
}

// DrawLine darkens pixels near the segment (x0,y0)-(x1,y1) towards level.
// Pixels within width/2 of the centreline take level; a one pixel linear
// ramp blends the edge into the existing background.
func (f *Frame) DrawLine(x0, y0, x1, y1, width float64, level uint8) {
	half := width / 2
	dx, dy := x1-x0, y1-y0
	l2 := dx*dx + dy*dy
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			px, py := float64(x), float64(y)
			t := 0.0
			if l2 > 0 {
				t = ((px-x0)*dx + (py-y0)*dy) / l2
				t = math.Max(0, math.Min(1, t))
			}
			cx, cy := x0+t*dx, y0+t*dy
			d := math.Hypot(px-cx, py-cy)
			var a float64
			switch {
			case d <= half:
				a = 1
			case d <= half+1:
				a = half + 1 - d
			default:
				continue
			}
			i := x + y*f.Width
			v := float64(f.Pix[i])*(1-a) + float64(level)*a
			if v < float64(f.Pix[i]) {
				f.Pix[i] = uint8(math.Round(v))
			}
		}
	}
}

// DrawPolyline draws consecutive DrawLine segments through pts (x,y pairs).
func (f *Frame) DrawPolyline(pts [][2]float64, width float64, level uint8) {
	for i := 1; i < len(pts); i++ {
		f.DrawLine(pts[i-1][0], pts[i-1][1], pts[i][0], pts[i][1], width, level)
	}
}

// AddNoise adds uniform noise in [-amp, amp] using a fixed seed so fixtures
// are reproducible.
func (f *Frame) AddNoise(seed int64, amp float64) {
	rng := rand.New(rand.NewSource(seed))
	for i, p := range f.Pix {
		v := float64(p) + (rng.Float64()*2-1)*amp
		f.Pix[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
}

// Fill sets every pixel in the axis-aligned rectangle to level.
func (f *Frame) Fill(x0, y0, x1, y1 int, level uint8) {
	for y := max(0, y0); y < min(f.Height, y1); y++ {
		for x := max(0, x0); x < min(f.Width, x1); x++ {
			f.Pix[x+y*f.Width] = level
		}
	}
}
