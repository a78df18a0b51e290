package l5tracks

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/whisker.trace/internal/config"
	"github.com/banshee-data/whisker.trace/internal/monitoring"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
)

// ErrOutOfOrder is returned when frames are not observed in strictly
// increasing order.
var ErrOutOfOrder = errors.New("frame observed out of order")

// NoTrack labels a segment that belongs to no track.
const NoTrack = -1

// Symbol is one per-frame observation of a track.
type Symbol int

const (
	// Good is a match within the soft distance.
	Good Symbol = iota
	// Weak is a match between the soft and gate distances.
	Weak
	// Missing means the track found no segment in the frame.
	Missing

	numSymbols
)

func (s Symbol) String() string {
	switch s {
	case Good:
		return "good"
	case Weak:
		return "weak"
	case Missing:
		return "missing"
	}
	return fmt.Sprintf("Symbol(%d)", int(s))
}

// Hidden states of the coherence model.
const (
	Coherent = iota
	Ambiguous
)

// LinkerConfig holds the correspondence parameters.
type LinkerConfig struct {
	GateDistance    float64
	SoftDistance    float64
	MaxMisses       int
	DistanceSamples int
	// Coherence is a two-state model over Good, Weak and Missing.
	Coherence HMM
}

// DefaultLinkerConfig returns the built-in tuning defaults.
func DefaultLinkerConfig() LinkerConfig {
	cfg, err := LinkerConfigFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(fmt.Sprintf("built-in linker defaults are invalid: %v", err))
	}
	return cfg
}

// LinkerConfigFromTuning builds a LinkerConfig, converting the coherence
// probabilities to log space.
func LinkerConfigFromTuning(cfg *config.TuningConfig) (LinkerConfig, error) {
	pc := cfg.GetStartCoherent()
	cs, as := cfg.GetCoherentStay(), cfg.GetAmbiguousStay()
	hmm, err := NewHMM(
		LogProbs([]float64{pc, 1 - pc}),
		[][]float64{
			LogProbs([]float64{cs, 1 - cs}),
			LogProbs([]float64{1 - as, as}),
		},
		[][]float64{
			LogProbs(cfg.GetEmissionCoherent()),
			LogProbs(cfg.GetEmissionAmbiguous()),
		},
	)
	if err != nil {
		return LinkerConfig{}, fmt.Errorf("coherence model: %w", err)
	}
	if hmm.Symbols() != int(numSymbols) {
		return LinkerConfig{}, fmt.Errorf("%w: coherence model has %d symbols, want %d", ErrDimension, hmm.Symbols(), numSymbols)
	}
	return LinkerConfig{
		GateDistance:    cfg.GetGateDistance(),
		SoftDistance:    cfg.GetSoftDistance(),
		MaxMisses:       cfg.GetMaxMisses(),
		DistanceSamples: cfg.GetDistanceSamples(),
		Coherence:       hmm,
	}, nil
}

// Ref names one segment: frame index and segment id.
type Ref struct {
	Frame int
	Seg   int
}

// Tracks is the linker output.
type Tracks struct {
	// ByID lists each track's segments in frame order.
	ByID map[int][]Ref
	// Labels maps every observed segment to its track id or NoTrack.
	Labels map[Ref]int
	// Detached counts segments removed from tracks by the decoder.
	Detached int
}

// IDs returns the track ids in ascending order.
func (t Tracks) IDs() []int {
	ids := make([]int, 0, len(t.ByID))
	for id := range t.ByID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type observation struct {
	frame int
	seg   int // NoTrack when sym is Missing
	sym   Symbol
}

type track struct {
	id     int
	last   *l4segments.Segment
	misses int
	obs    []observation
}

// Linker assigns segment identities frame by frame. It is not safe for
// concurrent use.
type Linker struct {
	cfg LinkerConfig

	tracks    []*track // every track ever opened, by id
	active    []*track
	lastFrame int
	started   bool
}

// NewLinker validates cfg and returns an empty linker.
func NewLinker(cfg LinkerConfig) (*Linker, error) {
	if cfg.GateDistance <= 0 {
		return nil, fmt.Errorf("gate distance must be positive, got %g", cfg.GateDistance)
	}
	if cfg.SoftDistance > cfg.GateDistance {
		return nil, fmt.Errorf("soft distance %g exceeds gate distance %g", cfg.SoftDistance, cfg.GateDistance)
	}
	if cfg.MaxMisses < 1 {
		return nil, fmt.Errorf("max misses must be at least 1, got %d", cfg.MaxMisses)
	}
	if err := cfg.Coherence.check(nil); err != nil {
		return nil, err
	}
	if cfg.Coherence.Symbols() != int(numSymbols) {
		return nil, fmt.Errorf("%w: coherence model has %d symbols, want %d", ErrDimension, cfg.Coherence.Symbols(), numSymbols)
	}
	return &Linker{cfg: cfg}, nil
}

// Active returns the number of tracks still accepting segments.
func (l *Linker) Active() int { return len(l.active) }

// Observe links one frame's segments to the active tracks. Segments that
// no track can take open new tracks.
func (l *Linker) Observe(frame int, segs []*l4segments.Segment) error {
	if l.started && frame <= l.lastFrame {
		return fmt.Errorf("%w: frame %d after %d", ErrOutOfOrder, frame, l.lastFrame)
	}
	l.started = true
	l.lastFrame = frame

	cost := make([][]float64, len(l.active))
	for i, tr := range l.active {
		cost[i] = make([]float64, len(segs))
		for j, s := range segs {
			d := Distance(tr.last, s, l.cfg.DistanceSamples)
			if d > l.cfg.GateDistance || math.IsInf(d, 1) {
				d = Forbidden
			}
			cost[i][j] = d
		}
	}
	asg, err := Assign(cost)
	if err != nil {
		return fmt.Errorf("frame %d: %w", frame, err)
	}

	taken := make([]bool, len(segs))
	kept := l.active[:0]
	for i, tr := range l.active {
		j := asg.Rows[i]
		if j == NoMatch {
			tr.misses++
			tr.obs = append(tr.obs, observation{frame: frame, seg: NoTrack, sym: Missing})
			monitoring.LinksTotal.WithLabelValues(Missing.String()).Inc()
			if tr.misses >= l.cfg.MaxMisses {
				continue
			}
			kept = append(kept, tr)
			continue
		}
		sym := Weak
		if cost[i][j] <= l.cfg.SoftDistance {
			sym = Good
		}
		taken[j] = true
		tr.misses = 0
		tr.last = segs[j]
		tr.obs = append(tr.obs, observation{frame: frame, seg: segs[j].ID, sym: sym})
		monitoring.LinksTotal.WithLabelValues(sym.String()).Inc()
		kept = append(kept, tr)
	}
	l.active = kept

	for j, s := range segs {
		if taken[j] {
			continue
		}
		tr := &track{
			id:   len(l.tracks),
			last: s,
			obs:  []observation{{frame: frame, seg: s.ID, sym: Good}},
		}
		l.tracks = append(l.tracks, tr)
		l.active = append(l.active, tr)
	}
	return nil
}

// ObserveTable feeds every frame of t in ascending order.
func (l *Linker) ObserveTable(t l4segments.Table) error {
	for _, f := range t.Frames() {
		if err := l.Observe(f, t.Segments(f)); err != nil {
			return err
		}
	}
	return nil
}

// Finish decodes each track's symbol sequence and detaches the segments
// observed while the track was in the Ambiguous state.
func (l *Linker) Finish() (Tracks, error) {
	out := Tracks{ByID: map[int][]Ref{}, Labels: map[Ref]int{}}
	syms := []int{}
	for _, tr := range l.tracks {
		syms = syms[:0]
		for _, o := range tr.obs {
			syms = append(syms, int(o.sym))
		}
		res, err := Decode(syms, l.cfg.Coherence)
		if err != nil {
			return Tracks{}, fmt.Errorf("track %d: %w", tr.id, err)
		}
		for k, o := range tr.obs {
			if o.sym == Missing {
				continue
			}
			ref := Ref{Frame: o.frame, Seg: o.seg}
			if res.Path[k] == Ambiguous {
				out.Labels[ref] = NoTrack
				out.Detached++
				continue
			}
			out.Labels[ref] = tr.id
			out.ByID[tr.id] = append(out.ByID[tr.id], ref)
		}
	}
	if out.Detached > 0 {
		monitoring.DetachedTotal.Add(float64(out.Detached))
		monitoring.Logf("linker: %d segments detached across %d tracks", out.Detached, len(l.tracks))
	}
	return out, nil
}
