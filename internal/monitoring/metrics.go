package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesTracedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisk_frames_traced_total",
		Help: "Total number of frames traced",
	})

	SegmentsFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisk_segments_found_total",
		Help: "Total number of whisker segments kept after tracing",
	})

	FailedTracesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisk_failed_traces_total",
		Help: "Seeds whose ridge could not be followed",
	})

	FrameTraceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisk_frame_trace_duration_seconds",
		Help:    "Wall time spent tracing a single frame",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	LinksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisk_links_total",
		Help: "Track observations recorded by the linker, by symbol",
	}, []string{"symbol"})

	DetachedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisk_detached_segments_total",
		Help: "Segments detached from their track after sequence decoding",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whisk_active_workers",
		Help: "Number of tracing workers currently busy",
	})
)

// StartMetricsServer serves /metrics and /healthz on port in the background.
// The returned server is shut down by the caller.
func StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		Logf("metrics server listening on :%d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Logf("metrics server error: %v", err)
		}
	}()

	return srv
}

// StopMetricsServer shuts srv down, waiting at most until ctx is done.
func StopMetricsServer(ctx context.Context, srv *http.Server) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		Logf("metrics server shutdown: %v", err)
	}
}
