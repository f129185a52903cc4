package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"microquant/internal/models"
	"microquant/pkg/config"
	"microquant/pkg/imageio"
	"microquant/pkg/logging"
	"microquant/pkg/metric"
	"microquant/pkg/segmentation"
)

// paramList collects repeated -param key=value flags.
type paramList []string

func (p *paramList) String() string { return strings.Join(*p, ",") }

func (p *paramList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// options is everything main reads from the command line.
type options struct {
	ConfigPath string
	Params     []string
	OutputDir  string
	Logfile    string
	Debug      bool
	Inputs     []string
}

func main() {
	var params paramList
	configPath := flag.String("config", "", "YAML or TOML parameter file")
	flag.Var(&params, "param", "Parameter override key=value (repeatable)")
	outputDir := flag.String("output", "", "Directory for quantification files (overrides output.dir)")
	logfile := flag.String("log", "", "Rotating log file (default: stderr)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] image|directory|manifest.yaml|URL ...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	opts := options{
		ConfigPath: *configPath,
		Params:     params,
		OutputDir:  *outputDir,
		Logfile:    *logfile,
		Debug:      *debug,
		Inputs:     flag.Args(),
	}
	summary, err := run(context.Background(), opts)
	logging.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "microquant: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nProcessed %d images (%d failed), %d regions total\n",
		summary.Succeeded+summary.Failed, summary.Failed, summary.Regions())
	for _, o := range summary.Outcomes {
		if o.Err != nil {
			fmt.Printf("- %s: FAILED: %v\n", o.Job, o.Err)
			continue
		}
		fmt.Printf("- %s: %d regions, %d measurements -> %s (%.2fs)\n",
			o.Job, o.Regions, o.Measurements, o.Output, o.Duration.Seconds())
	}
	if summary.Succeeded == 0 {
		os.Exit(2)
	}
}

// loadParameters merges the config file with command line overrides, the
// latter winning.
func loadParameters(opts options) (*config.ParameterSet, error) {
	p := config.NewParameterSet()
	if opts.ConfigPath != "" {
		fromFile, err := config.LoadFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		p.Merge(fromFile)
	}
	p.Merge(config.ParseEntries(opts.Params))
	if opts.OutputDir != "" {
		p.Set(config.KeyOutputDir, opts.OutputDir)
	}
	if opts.Logfile != "" {
		p.Set(config.KeyLogfile, opts.Logfile)
	}
	return p, nil
}

// run processes every input. A failing image is recorded in the summary and
// does not stop the others; only setup errors are returned.
func run(ctx context.Context, opts options) (*models.Summary, error) {
	if opts.Debug {
		logging.SetLogMode(logging.DebugMode)
	}
	p, err := loadParameters(opts)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	cfg := config.Resolve(p)
	cfg.Log.SetLogger()

	switch cfg.Output.Format {
	case "csv", "yaml":
	default:
		return nil, fmt.Errorf("unknown output format %q (want csv or yaml)", cfg.Output.Format)
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	locks := imageio.NewFileLockManager()
	source := imageio.NewRouter(locks, imageio.NewConnectionLimiter(cfg.IO.MaxConnections))
	seg := segmentation.NewSegmenter(&segmentation.Params{
		Config:          cfg,
		IntermediateDir: filepath.Join(cfg.Output.Dir, "intermediate"),
		Sink:            imageio.NewSink(locks),
	})

	inputs := dedupInputs(opts.Inputs)
	names := models.UniqueBaseNames(inputs)
	logging.Infof("Processing %d inputs with %d workers, threshold %s", len(inputs), cfg.IO.Workers, cfg.Threshold.Method)
	var (
		mu      sync.Mutex
		summary models.Summary
	)
	record := func(o models.Outcome) {
		mu.Lock()
		summary.Add(o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.IO.Workers)
	for i, id := range inputs {
		g.Go(func() error {
			processInput(gctx, source, seg, cfg, models.Job{Identifier: id, Base: names[i]}, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &summary, nil
}

// dedupInputs drops repeated identifiers, keeping the first occurrence.
// Series cursors are per identifier, so a repeat would read nothing.
func dedupInputs(inputs []string) []string {
	seen := make(map[string]bool, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, id := range inputs {
		if seen[id] {
			logging.Warningf("Ignoring repeated input %s", id)
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// processInput reads every series of input.Identifier in turn.
func processInput(ctx context.Context, source imageio.SeriesSource, seg *segmentation.Segmenter, cfg *config.Config, input models.Job, record func(models.Outcome)) {
	id := input.Identifier
	count := source.SeriesCount(id)
	if count == 0 {
		// resolving failed; ReadImage reports why
		_, err := source.ReadImage(ctx, id)
		if err == nil {
			err = errors.New("no series")
		}
		logging.Errorf("Skipping %s: %v", id, err)
		record(models.Outcome{Job: input, Err: err})
		return
	}
	for source.HasMoreSeries(id) {
		job := input
		job.Series = source.CurrentSeriesIndex(id) + 1
		job.Count = count
		start := time.Now()
		out, err := processJob(ctx, source, seg, cfg, job)
		out.Duration = time.Since(start)
		if err != nil {
			logging.Errorf("Failed to process %s: %v", job, err)
			out.Err = err
		}
		record(out)
	}
}

func processJob(ctx context.Context, source imageio.Source, seg *segmentation.Segmenter, cfg *config.Config, job models.Job) (models.Outcome, error) {
	out := models.Outcome{Job: job}
	im, err := source.ReadImage(ctx, job.Identifier)
	if err != nil {
		return out, err
	}
	logging.Infof("Loaded %s: %s", job, im.Dimensions())
	res, err := seg.Process(ctx, job, im.ReadOnly())
	if err != nil {
		return out, err
	}
	out.Regions = res.Regions
	out.Measurements = res.Quantification.Len()
	out.Output = filepath.Join(cfg.Output.Dir, job.Name()+"."+cfg.Output.Format)
	if err := writeQuantification(out.Output, cfg.Output.Format, job, res.Quantification); err != nil {
		out.Output = ""
		return out, err
	}
	return out, nil
}

func writeQuantification(path, format string, job models.Job, q *metric.Quantification) error {
	if format == "yaml" {
		return metric.SaveYAML(path, job.String(), q)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := metric.WriteCSV(f, q); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
