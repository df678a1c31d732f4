// Command merge-bench times cooperative point-cloud merging over a dataset
// and reports latency per number of vehicles.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/cloudmerge/internal/bench"
	"github.com/banshee-data/cloudmerge/internal/config"
	"github.com/banshee-data/cloudmerge/internal/dataset"
	"github.com/banshee-data/cloudmerge/internal/db"
	"github.com/banshee-data/cloudmerge/internal/fsutil"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/report"
	"github.com/banshee-data/cloudmerge/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "run":
		err = handleRun(args)
	case "migrate":
		err = handleMigrate(args)
	case "runs":
		err = handleRuns(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("merge-bench %s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`merge-bench - cooperative point-cloud merge benchmark

Usage: merge-bench <command> [options]

Commands:
  run        Run the benchmark over a dataset
  migrate    Apply or roll back database migrations (up|down|version)
  runs       List stored benchmark runs
  version    Print version information
  help       Show this help

Run 'merge-bench <command> -h' for command options.`)
}

type runOptions struct {
	configPath string
	dataRoot   string
	dbPath     string
	outputDir  string
	device     int
	iterations int
	allFrames  bool
	noDB       bool
	debug      bool
}

func parseRunFlags(args []string) (*runOptions, error) {
	o := &runOptions{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.DefaultConfigPath, "Harness configuration file (.json)")
	fs.StringVar(&o.dataRoot, "data", "", "Override the dataset root")
	fs.StringVar(&o.dbPath, "db", "", "Override the SQLite database path")
	fs.StringVar(&o.outputDir, "out", "", "Override the report output directory")
	fs.IntVar(&o.device, "device", -1, "Override the device index recorded with the run")
	fs.IntVar(&o.iterations, "iterations", 0, "Override timed iterations per frame")
	fs.BoolVar(&o.allFrames, "all-frames", false, "Benchmark every ego frame on disk instead of the configured range")
	fs.BoolVar(&o.noDB, "no-db", false, "Do not persist the run")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// applyOverrides folds command-line overrides into the loaded config.
func (o *runOptions) applyOverrides(cfg *config.HarnessConfig) {
	if o.dataRoot != "" {
		cfg.DataRoot = &o.dataRoot
	}
	if o.dbPath != "" {
		cfg.DBPath = &o.dbPath
	}
	if o.outputDir != "" {
		cfg.OutputDir = &o.outputDir
	}
	if o.device >= 0 {
		cfg.DeviceIndex = &o.device
	}
	if o.iterations > 0 {
		cfg.Iterations = &o.iterations
	}
	if o.allFrames {
		all := 0
		cfg.FrameCount = &all
	}
}

// benchFrames returns every ego frame found on disk when frame_count is 0,
// and the configured consecutive range otherwise.
func benchFrames(cfg *config.HarnessConfig, loader *dataset.Loader) ([]string, error) {
	if cfg.GetFrameCount() == 0 {
		return loader.ListFrames()
	}
	return bench.FrameRange(cfg.GetFrameStart(), cfg.GetFrameCount()), nil
}

func handleRun(args []string) error {
	o, err := parseRunFlags(args)
	if err != nil {
		return err
	}
	monitoring.SetDebug(o.debug)

	cfg, err := config.LoadHarnessConfig(o.configPath)
	if err != nil {
		return err
	}
	o.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout := cfg.GetRunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var store *db.RunStore
	if !o.noDB {
		d, err := db.OpenAndMigrate(cfg.GetDBPath())
		if err != nil {
			return err
		}
		defer d.Close()
		store = db.NewRunStore(d)
	}

	return runBenchmark(ctx, cfg, fsutil.OSFileSystem{}, store, os.Stdout)
}

// runBenchmark runs the harness and writes every configured artefact. store
// may be nil.
func runBenchmark(ctx context.Context, cfg *config.HarnessConfig, fsys fsutil.FileSystem, store *db.RunStore, stdout io.Writer) error {
	loader := dataset.NewLoader(fsys, dataset.LayoutFromConfig(cfg))
	loader.Strict = cfg.GetStrictPoses()

	frames, err := benchFrames(cfg, loader)
	if err != nil {
		return err
	}
	runner := bench.NewRunner(loader, merge.NewModule(), frames)
	runner.Iterations = cfg.GetIterations()
	runner.Warmup = cfg.GetWarmup()
	runner.DeviceIndex = cfg.GetDeviceIndex()

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if err := res.WriteSummary(stdout); err != nil {
		return err
	}

	if store != nil {
		if err := store.InsertResult(res); err != nil {
			return err
		}
		monitoring.Logf("[bench] stored run %s", res.RunID)
	}

	if len(res.Samples) == 0 {
		monitoring.Logf("[bench] no samples, skipping reports")
		return nil
	}

	outDir := cfg.GetOutputDir()
	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	var png bytes.Buffer
	if err := report.WriteLatencyPlot(&png, res, "png"); err != nil {
		return err
	}
	var html bytes.Buffer
	if err := report.RenderSummaryHTML(&html, res); err != nil {
		return err
	}

	for _, a := range []struct {
		suffix string
		data   []byte
	}{
		{"_latency.png", png.Bytes()},
		{"_summary.html", html.Bytes()},
	} {
		path := filepath.Join(outDir, res.RunID+a.suffix)
		if err := fsys.WriteFile(path, a.data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
	}
	return nil
}

func handleMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", config.EmptyHarnessConfig().GetDBPath(), "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: merge-bench migrate [-db path] up|down|version")
	}

	d, err := db.Open(*dbPath)
	if err != nil {
		return err
	}
	defer d.Close()

	switch fs.Arg(0) {
	case "up":
		err = d.MigrateUp()
	case "down":
		err = d.MigrateDown()
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", fs.Arg(0))
	}
	if err != nil {
		return err
	}

	v, dirty, err := d.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty=%v)\n", v, dirty)
	return nil
}

func handleRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", config.EmptyHarnessConfig().GetDBPath(), "SQLite database path")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := db.OpenAndMigrate(*dbPath)
	if err != nil {
		return err
	}
	defer d.Close()
	return listRuns(db.NewRunStore(d), *limit, os.Stdout)
}

func listRuns(store *db.RunStore, limit int, w io.Writer) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  device=%d samples=%d skipped=%d elapsed=%s\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.DeviceIndex, r.SampleCount, r.SkippedCount, r.Elapsed)
		groups, err := store.ListGroups(r.RunID)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Fprintf(w, "    %d: %.3f ms, stddev: %.3f ms\n", g.Vehicles, g.Mean, g.StdDev)
		}
	}
	return nil
}
