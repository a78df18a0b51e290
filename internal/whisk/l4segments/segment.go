package l4segments

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned when per-sample arrays disagree in length.
var ErrLengthMismatch = errors.New("segment sample arrays differ in length")

// ErrSplitIndex is returned for a split index outside [0, Len()].
var ErrSplitIndex = errors.New("split index out of range")

// Sample is one point along a segment.
type Sample struct {
	X, Y  float32
	Thick float32
	Score float32
}

// Segment is an ordered trace of one whisker in one frame. ID is unique
// within its frame; Time is the frame index.
type Segment struct {
	ID      int
	Time    int
	Samples []Sample
}

// FromArrays builds a segment from parallel per-sample arrays.
func FromArrays(id, time int, x, y, thick, scores []float32) (*Segment, error) {
	n := len(x)
	if len(y) != n || len(thick) != n || len(scores) != n {
		return nil, fmt.Errorf("%w: x=%d y=%d thick=%d scores=%d",
			ErrLengthMismatch, len(x), len(y), len(thick), len(scores))
	}
	s := &Segment{ID: id, Time: time, Samples: make([]Sample, n)}
	for i := range s.Samples {
		s.Samples[i] = Sample{X: x[i], Y: y[i], Thick: thick[i], Score: scores[i]}
	}
	return s, nil
}

// Len returns the number of samples.
func (s *Segment) Len() int { return len(s.Samples) }

// Arrays returns freshly allocated per-sample arrays.
func (s *Segment) Arrays() (x, y, thick, scores []float32) {
	n := len(s.Samples)
	x, y = make([]float32, n), make([]float32, n)
	thick, scores = make([]float32, n), make([]float32, n)
	for i, p := range s.Samples {
		x[i], y[i], thick[i], scores[i] = p.X, p.Y, p.Thick, p.Score
	}
	return x, y, thick, scores
}

// Clone returns a deep copy.
func (s *Segment) Clone() *Segment {
	cp := *s
	cp.Samples = append([]Sample(nil), s.Samples...)
	return &cp
}

// Split cuts s before sample i, returning [0,i) and [i,n). Either side is
// nil when empty. Both halves keep s's id and time and own their samples.
func (s *Segment) Split(i int) (left, right *Segment, err error) {
	if i < 0 || i > len(s.Samples) {
		return nil, nil, fmt.Errorf("%w: %d not in [0, %d]", ErrSplitIndex, i, len(s.Samples))
	}
	if i > 0 {
		left = &Segment{ID: s.ID, Time: s.Time, Samples: append([]Sample(nil), s.Samples[:i]...)}
	}
	if i < len(s.Samples) {
		right = &Segment{ID: s.ID, Time: s.Time, Samples: append([]Sample(nil), s.Samples[i:]...)}
	}
	return left, right, nil
}

// Join concatenates left and right into a new segment carrying left's id
// and time. A nil side contributes nothing; if left is nil the result
// takes right's id and time. Join(nil, nil) is nil.
func Join(left, right *Segment) *Segment {
	switch {
	case left == nil && right == nil:
		return nil
	case left == nil:
		return right.Clone()
	case right == nil:
		return left.Clone()
	}
	out := &Segment{ID: left.ID, Time: left.Time, Samples: make([]Sample, 0, left.Len()+right.Len())}
	out.Samples = append(out.Samples, left.Samples...)
	out.Samples = append(out.Samples, right.Samples...)
	return out
}

// Reverse flips the sample order in place.
func (s *Segment) Reverse() {
	for i, j := 0, len(s.Samples)-1; i < j; i, j = i+1, j-1 {
		s.Samples[i], s.Samples[j] = s.Samples[j], s.Samples[i]
	}
}

// Equal reports whether a and b have the same id, time and samples.
func Equal(a, b *Segment) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Time != b.Time || len(a.Samples) != len(b.Samples) {
		return false
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			return false
		}
	}
	return true
}
