// Command whisk-convert rewrites a whisker segment file in another format,
// or exports a recorded run from a SQLite database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/whisker.trace/internal/fsutil"
	"github.com/banshee-data/whisker.trace/internal/version"
	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage/sqlite"
)

type options struct {
	in     string
	out    string
	format storage.Format
	dbPath string
	run    string
}

func parseFlags(args []string) (options, bool, error) {
	fs := flag.NewFlagSet("whisk-convert", flag.ContinueOnError)
	var o options
	var format string
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.StringVar(&o.in, "in", "", "Input segment file (format detected from its header)")
	fs.StringVar(&o.out, "out", "", "Output segment file (required)")
	fs.StringVar(&format, "format", string(storage.FormatBinary), "Output format: whiskbin1 or whiskpb1")
	fs.StringVar(&o.dbPath, "db", "", "Read from this SQLite database instead of -in")
	fs.StringVar(&o.run, "run", "", "Run id or source path to export with -db (latest run for a path)")
	if err := fs.Parse(args); err != nil {
		return options{}, false, err
	}
	if *showVersion {
		return o, true, nil
	}
	f, err := storage.ParseFormat(format)
	if err != nil {
		return options{}, false, err
	}
	o.format = f
	switch {
	case o.out == "":
		return options{}, false, errors.New("-out is required")
	case (o.in == "") == (o.dbPath == ""):
		return options{}, false, errors.New("set exactly one of -in or -db")
	case o.dbPath != "" && o.run == "":
		return options{}, false, errors.New("-db needs -run")
	}
	return o, false, nil
}

func load(ctx context.Context, fsys fsutil.FileSystem, o options) (l4segments.Table, error) {
	if o.dbPath == "" {
		return storage.NewFileStore(fsys, o.format).Load(ctx, o.in)
	}
	store, err := sqlite.Open(o.dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx, o.run)
}

func convert(ctx context.Context, fsys fsutil.FileSystem, o options) (int, error) {
	t, err := load(ctx, fsys, o)
	if err != nil {
		return 0, err
	}
	if err := storage.NewFileStore(fsys, o.format).Save(ctx, o.out, t); err != nil {
		return 0, err
	}
	return t.Count(), nil
}

func main() {
	o, showVersion, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}
	if showVersion {
		fmt.Println(version.String("whisk-convert"))
		return
	}
	n, err := convert(context.Background(), fsutil.OSFileSystem{}, o)
	if err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}
	log.Printf("wrote %d segments to %s (%s)", n, o.out, o.format)
}
