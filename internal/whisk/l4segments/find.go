package l4segments

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/whisker.trace/internal/monitoring"
	"github.com/banshee-data/whisker.trace/internal/whisk/l1image"
	"github.com/banshee-data/whisker.trace/internal/whisk/l3seeds"
)

// ErrNilImage is returned when a frame-level operation is given no image.
var ErrNilImage = errors.New("nil image")

// Result is the outcome of tracing one frame.
type Result struct {
	Segments []*Segment
	// Count equals len(Segments).
	Count int
	// Failed counts seeds whose trace failed or came out too short.
	Failed int
	// Skipped counts seeds left untraced when the frame budget ran out.
	Skipped int
}

// FindSegments seeds the whole frame and traces every candidate, strongest
// first. Seeds that fall on an already traced segment are passed over, as
// are traces that mostly retrace one.
// bg is accepted for interface compatibility and not used.
//
// Per-seed failures never abort the frame. An error is returned only for
// a nil image or when ctx is cancelled.
func (t *Tracer) FindSegments(ctx context.Context, frame int, img, bg *l1image.Image, sc *Scratch) (Result, error) {
	_ = bg
	if img == nil {
		return Result{}, ErrNilImage
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if sc == nil {
		sc = t.NewScratch()
	}

	var fields *l3seeds.Fields
	if t.cfg.TraceOnObjectsOnly {
		om := l1image.ExtractObjects(img, float32(t.cfg.ObjectLevel), t.cfg.ObjectMinSize)
		fields = t.seeds.ComputeFieldsOnObjects(img, om)
	} else {
		fields = t.seeds.ComputeFieldsOnGrid(img, 0)
	}
	seeds := t.seeds.SeedsFromFields(fields)

	budgetCtx := ctx
	if t.cfg.FrameBudget > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, t.cfg.FrameBudget)
		defer cancel()
	}

	res := Result{Segments: []*Segment{}}
	covered := make([]bool, img.Width*img.Height)
	for i, seed := range seeds {
		if budgetCtx.Err() != nil {
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("frame %d: %w", frame, err)
			}
			res.Skipped = len(seeds) - i
			monitoring.Logf("frame %d: budget %v exhausted, %d seeds skipped", frame, t.cfg.FrameBudget, res.Skipped)
			break
		}
		if covered[img.Index(seed.X, seed.Y)] {
			continue
		}
		seg, err := t.Trace(img, seed, sc)
		if err != nil || seg.Len() < t.cfg.MinSegmentLength {
			res.Failed++
			continue
		}
		if retraced(covered, img.Width, img.Height, seg) {
			continue
		}
		seg.ID = len(res.Segments)
		seg.Time = frame
		res.Segments = append(res.Segments, seg)
		cover(covered, img.Width, img.Height, seg)
	}
	res.Count = len(res.Segments)
	return res, nil
}

// retraced reports whether more than half of the samples of s land on
// covered pixels.
func retraced(mask []bool, w, h int, s *Segment) bool {
	hit := 0
	for _, p := range s.Samples {
		x, y := int(math.Round(float64(p.X))), int(math.Round(float64(p.Y)))
		if x >= 0 && x < w && y >= 0 && y < h && mask[x+y*w] {
			hit++
		}
	}
	return 2*hit > len(s.Samples)
}

// cover marks every pixel within Thick/2+1 of each sample of s.
func cover(mask []bool, w, h int, s *Segment) {
	for _, p := range s.Samples {
		rad := float64(p.Thick)/2 + 1
		r := int(math.Ceil(rad))
		cx, cy := int(math.Round(float64(p.X))), int(math.Round(float64(p.Y)))
		for dy := -r; dy <= r; dy++ {
			y := cy + dy
			if y < 0 || y >= h {
				continue
			}
			for dx := -r; dx <= r; dx++ {
				x := cx + dx
				if x < 0 || x >= w || float64(dx*dx+dy*dy) > rad*rad {
					continue
				}
				mask[x+y*w] = true
			}
		}
	}
}
