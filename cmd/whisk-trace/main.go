// Command whisk-trace traces whiskers through a directory of still frames
// and writes the segments and their track labels.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/whisker.trace/internal/config"
	"github.com/banshee-data/whisker.trace/internal/monitoring"
	"github.com/banshee-data/whisker.trace/internal/version"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/l5tracks"
	"github.com/banshee-data/whisker.trace/internal/whisk/pipeline"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage/objectstore"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage/sqlite"
)

type options struct {
	framesDir   string
	out         string
	format      storage.Format
	object      string
	dbPath      string
	tuningPath  string
	workers     int
	logLevel    string
	metricsPort int
	otlp        string
	showVersion bool

	minio objectstore.Config
}

// parseFlags reads command-line flags. Defaults come from the WHISK_*
// environment so flags always win.
func parseFlags(args []string, rc *config.RuntimeConfig) (options, error) {
	fs := flag.NewFlagSet("whisk-trace", flag.ContinueOnError)
	var o options
	var format string
	fs.StringVar(&o.framesDir, "frames", "", "Directory of PNG or TIFF frames (required)")
	fs.StringVar(&o.out, "out", "", "Write segments to this file")
	fs.StringVar(&format, "format", string(storage.FormatBinary), "Output format: whiskbin1 or whiskpb1")
	fs.StringVar(&o.object, "object", "", "Upload segments to bucket/key on the configured MinIO endpoint")
	fs.StringVar(&o.dbPath, "db", rc.DBPath, "Record the run and its tracks in this SQLite database")
	fs.StringVar(&o.tuningPath, "tuning", rc.TuningPath, "Tuning JSON file (defaults built in)")
	fs.IntVar(&o.workers, "workers", rc.Workers, "Tracing workers (0 = one per CPU)")
	fs.StringVar(&o.logLevel, "log-level", rc.LogLevel, "Log level: debug, info, warn, error")
	fs.IntVar(&o.metricsPort, "metrics-port", rc.MetricsPort, "Serve Prometheus metrics on this port (0 disables)")
	fs.StringVar(&o.otlp, "otlp-endpoint", rc.OTLPEndpoint, "OTLP/HTTP endpoint URL for trace export")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	o.minio = objectstore.Config{
		Endpoint:  rc.MinIOEndpoint,
		AccessKey: rc.MinIOAccessKey,
		SecretKey: rc.MinIOSecretKey,
		UseSSL:    rc.MinIOUseSSL,
	}
	if o.showVersion {
		return o, nil
	}

	f, err := storage.ParseFormat(format)
	if err != nil {
		return options{}, err
	}
	o.format = f
	if o.framesDir == "" {
		return options{}, errors.New("-frames is required")
	}
	if o.out == "" && o.object == "" && o.dbPath == "" {
		return options{}, errors.New("no output: set -out, -object or -db")
	}
	if o.object != "" && o.minio.Endpoint == "" {
		return options{}, errors.New("-object needs WHISK_MINIO_ENDPOINT")
	}
	if o.workers < 0 {
		return options{}, fmt.Errorf("-workers must be non-negative, got %d", o.workers)
	}
	return o, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func run(ctx context.Context, o options) error {
	tuning, err := loadTuning(o.tuningPath)
	if err != nil {
		return err
	}
	tracer, err := l4segments.NewTracer(l4segments.TracingConfigFromTuning(tuning))
	if err != nil {
		return err
	}
	linkCfg, err := l5tracks.LinkerConfigFromTuning(tuning)
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(tracer, linkCfg, o.workers)
	if err != nil {
		return err
	}

	if o.metricsPort > 0 {
		srv := monitoring.StartMetricsServer(o.metricsPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			monitoring.StopMetricsServer(shutdownCtx, srv)
		}()
	}
	if o.otlp != "" {
		tp, err := monitoring.InitTracer(ctx, "whisk-trace", o.otlp)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				monitoring.Logf("tracer shutdown: %v", err)
			}
		}()
	}

	src, err := pipeline.NewDirSource(o.framesDir)
	if err != nil {
		return err
	}
	monitoring.Logf("tracing %d frames from %s with %d workers", src.Len(), o.framesDir, runner.Workers())
	out, err := runner.Run(ctx, src)
	if err != nil {
		return err
	}

	if o.out != "" {
		if err := storage.NewFileStore(nil, o.format).Save(ctx, o.out, out.Table); err != nil {
			return err
		}
		monitoring.Logf("wrote %d segments to %s (%s)", out.Table.Count(), o.out, o.format)
	}
	if o.dbPath != "" {
		if err := saveRun(ctx, o, tuning, out); err != nil {
			return err
		}
	}
	if o.object != "" {
		if err := upload(ctx, o, out.Table); err != nil {
			return err
		}
	}
	return nil
}

func saveRun(ctx context.Context, o options, tuning *config.TuningConfig, out pipeline.Output) error {
	cfgJSON, err := json.Marshal(tuning)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}
	store, err := sqlite.Open(o.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.SaveRun(ctx, o.framesDir, string(cfgJSON), out.Table)
	if err != nil {
		return err
	}
	if err := store.SaveTracks(ctx, runID, out.Tracks); err != nil {
		return err
	}
	monitoring.Logf("recorded run %s in %s", runID, o.dbPath)
	return nil
}

func upload(ctx context.Context, o options, t l4segments.Table) error {
	bucket, _, err := objectstore.SplitPath(o.object)
	if err != nil {
		return err
	}
	store, err := objectstore.New(o.minio)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx, bucket); err != nil {
		return err
	}
	if err := store.Save(ctx, o.object, t); err != nil {
		return err
	}
	monitoring.Logf("uploaded %d segments to %s", t.Count(), o.object)
	return nil
}

func main() {
	rc, err := config.LoadRuntimeConfig()
	if err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}
	o, err := parseFlags(os.Args[1:], rc)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}
	if o.showVersion {
		fmt.Println(version.String("whisk-trace"))
		return
	}

	logger, err := monitoring.NewZap(o.logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	monitoring.UseZap(logger)
	logger.Info("starting", zap.String("version", version.Version), zap.String("git_sha", version.GitSHA))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		logger.Error("whisk-trace failed", zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
