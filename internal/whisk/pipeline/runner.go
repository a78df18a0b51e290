package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/whisker.trace/internal/monitoring"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/l5tracks"
)

// Stats summarizes one run.
type Stats struct {
	Frames   int
	Segments int
	Failed   int
	Skipped  int
	Elapsed  time.Duration
}

// Output is everything a run produces.
type Output struct {
	Table  l4segments.Table
	Tracks l5tracks.Tracks
	Stats  Stats
}

// Runner traces frames concurrently and links them in frame order.
type Runner struct {
	tracer  *l4segments.Tracer
	linkCfg l5tracks.LinkerConfig
	workers int
	scratch sync.Pool
}

// NewRunner returns a Runner with the given worker count. Zero or less
// means one worker per CPU.
func NewRunner(tracer *l4segments.Tracer, linkCfg l5tracks.LinkerConfig, workers int) (*Runner, error) {
	if tracer == nil {
		return nil, errors.New("nil tracer")
	}
	if _, err := l5tracks.NewLinker(linkCfg); err != nil {
		return nil, fmt.Errorf("linker config: %w", err)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	r := &Runner{tracer: tracer, linkCfg: linkCfg, workers: workers}
	r.scratch.New = func() any { return tracer.NewScratch() }
	return r, nil
}

// Workers returns the size of the tracing pool.
func (r *Runner) Workers() int { return r.workers }

type frameResult struct {
	index int
	res   l4segments.Result
}

// Run traces every frame of src and links the results. Frame i is stored
// with time i. Tracing runs at most 2*workers frames ahead of linking. The
// first tracing or linking error cancels the run.
func (r *Runner) Run(ctx context.Context, src FrameSource) (Output, error) {
	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "Runner.Run")
	defer span.End()

	start := time.Now()
	n := src.Len()
	span.SetAttributes(attribute.Int("frames", n), attribute.Int("workers", r.workers))

	linker, err := l5tracks.NewLinker(r.linkCfg)
	if err != nil {
		return Output{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	// Each frame holds a slot from dispatch until it is linked, which keeps
	// at most 2*workers results waiting in pending.
	slots := make(chan struct{}, 2*r.workers)
	results := make(chan frameResult, r.workers)
	var traceErr error
	go func() {
	dispatch:
		for i := 0; i < n; i++ {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				break dispatch
			}
			g.Go(func() error {
				res, err := r.traceFrame(gctx, src, i)
				if err != nil {
					return err
				}
				select {
				case results <- frameResult{index: i, res: res}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		traceErr = g.Wait()
		close(results)
	}()

	out := Output{Table: l4segments.NewTable()}
	pending := map[int]l4segments.Result{}
	next := 0
	var linkErr error
	for fr := range results {
		if linkErr != nil {
			continue
		}
		pending[fr.index] = fr.res
		for {
			res, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			<-slots
			if err := r.link(linker, out.Table, next, res); err != nil {
				linkErr = err
				cancel()
				break
			}
			out.Stats.Segments += res.Count
			out.Stats.Failed += res.Failed
			out.Stats.Skipped += res.Skipped
			out.Stats.Frames++
			next++
		}
	}

	err = linkErr
	if err == nil {
		err = traceErr
	}
	if err == nil && next != n {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Output{}, err
	}
	if next != n {
		err := fmt.Errorf("linked %d of %d frames", next, n)
		span.SetStatus(codes.Error, err.Error())
		return Output{}, err
	}

	_, spanFinish := tracer.Start(ctx, "decode_tracks")
	out.Tracks, err = linker.Finish()
	spanFinish.End()
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}
	out.Stats.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int("segments", out.Stats.Segments),
		attribute.Int("tracks", len(out.Tracks.ByID)),
	)
	monitoring.Logf("pipeline: %d frames, %d segments, %d failed, %d skipped, %d tracks in %s",
		out.Stats.Frames, out.Stats.Segments, out.Stats.Failed, out.Stats.Skipped,
		len(out.Tracks.ByID), out.Stats.Elapsed.Round(time.Millisecond))
	return out, nil
}

func (r *Runner) traceFrame(ctx context.Context, src FrameSource, i int) (l4segments.Result, error) {
	ctx, span := otel.Tracer("pipeline").Start(ctx, "trace_frame")
	defer span.End()
	span.SetAttributes(attribute.Int("frame", i))

	monitoring.ActiveWorkers.Inc()
	defer monitoring.ActiveWorkers.Dec()

	img, err := src.Frame(ctx, i)
	if err != nil {
		span.RecordError(err)
		return l4segments.Result{}, fmt.Errorf("frame %d: %w", i, err)
	}

	sc := r.scratch.Get().(*l4segments.Scratch)
	defer r.scratch.Put(sc)

	start := time.Now()
	res, err := r.tracer.FindSegments(ctx, i, img, nil, sc)
	if err != nil {
		span.RecordError(err)
		return l4segments.Result{}, fmt.Errorf("frame %d: %w", i, err)
	}
	monitoring.FrameTraceDuration.Observe(time.Since(start).Seconds())
	monitoring.FramesTracedTotal.Inc()
	monitoring.SegmentsFoundTotal.Add(float64(res.Count))
	monitoring.FailedTracesTotal.Add(float64(res.Failed))
	span.SetAttributes(attribute.Int("segments", res.Count), attribute.Int("failed", res.Failed))
	return res, nil
}

func (r *Runner) link(linker *l5tracks.Linker, t l4segments.Table, frame int, res l4segments.Result) error {
	if err := t.AddFrame(res.Segments); err != nil {
		return fmt.Errorf("frame %d: %w", frame, err)
	}
	if err := linker.Observe(frame, res.Segments); err != nil {
		return err
	}
	return nil
}
