package l4segments

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicate is returned when a (frame, id) pair is already present.
var ErrDuplicate = errors.New("duplicate segment")

// Table maps frame index to segment id to segment.
type Table map[int]map[int]*Segment

// NewTable returns an empty table.
func NewTable() Table { return Table{} }

// Add inserts s under (s.Time, s.ID).
func (t Table) Add(s *Segment) error {
	if _, ok := t[s.Time][s.ID]; ok {
		return fmt.Errorf("%w: frame %d id %d", ErrDuplicate, s.Time, s.ID)
	}
	t.Put(s)
	return nil
}

// Put inserts or replaces s under (s.Time, s.ID).
func (t Table) Put(s *Segment) {
	frame, ok := t[s.Time]
	if !ok {
		frame = make(map[int]*Segment)
		t[s.Time] = frame
	}
	frame[s.ID] = s
}

// AddFrame inserts every segment of one frame.
func (t Table) AddFrame(segs []*Segment) error {
	for _, s := range segs {
		if err := t.Add(s); err != nil {
			return err
		}
	}
	return nil
}

// Get looks up a segment.
func (t Table) Get(frame, id int) (*Segment, bool) {
	s, ok := t[frame][id]
	return s, ok
}

// Frames returns the frame indices in ascending order.
func (t Table) Frames() []int {
	frames := make([]int, 0, len(t))
	for f := range t {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	return frames
}

// Segments returns one frame's segments ordered by id.
func (t Table) Segments(frame int) []*Segment {
	segs := make([]*Segment, 0, len(t[frame]))
	for _, s := range t[frame] {
		segs = append(segs, s)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].ID < segs[j].ID })
	return segs
}

// Count returns the number of segments across all frames.
func (t Table) Count() int {
	n := 0
	for _, f := range t {
		n += len(f)
	}
	return n
}

// Clone deep-copies the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for _, f := range t {
		for _, s := range f {
			out.Put(s.Clone())
		}
	}
	return out
}

// TablesEqual reports whether a and b hold equal segments under the same
// keys. Empty frames are ignored.
func TablesEqual(a, b Table) bool {
	if a.Count() != b.Count() {
		return false
	}
	for frame, segs := range a {
		for id, s := range segs {
			o, ok := b.Get(frame, id)
			if !ok || !Equal(s, o) {
				return false
			}
		}
	}
	return true
}
