// Command fxingest bulk-ingests historical forex archives from
// histdata.com into InfluxDB. A run turns the requested pairs, platforms,
// timeframes and month range into one record per archive, drives each
// record through the enabled stages with bounded concurrency, and
// checkpoints progress under the working directory so an interrupted run
// resumes where it left off.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"fxingest/internal/config"
	"fxingest/internal/files"
	"fxingest/internal/infrastructure"
	"fxingest/internal/market"
	"fxingest/internal/pipeline"
	"fxingest/internal/stages"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	flags := flag.NewFlagSet("fxingest", flag.ContinueOnError)
	var (
		configFile = flags.String("c", "", "optional YAML config file")
		pairs      = flags.String("p", "", "comma-separated pairs, e.g. eurusd,gbpusd")
		platforms  = flags.String("P", "ascii", "comma-separated platforms")
		timeframes = flags.String("t", "M1", "comma-separated timeframes")
		start      = flags.String("s", "", "start month, YYYY-MM")
		end        = flags.String("e", "", "end month, YYYY-MM")
		dataDir    = flags.String("d", "", "working directory")
		validate   = flags.Bool("V", false, "enable the validate stage")
		download   = flags.Bool("D", false, "enable the download stage")
		extract    = flags.Bool("X", false, "enable the extract stage")
		clean      = flags.Bool("C", false, "enable the clean stage")
		load       = flags.Bool("I", false, "enable the load stage")
	)
	if err := flags.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fxingest: %v\n", err)
		return exitConfig
	}
	applyFlags(cfg, flags, *pairs, *platforms, *timeframes, *start, *end, *dataDir,
		*validate, *download, *extract, *clean, *load)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fxingest: %v\n", err)
		return exitConfig
	}

	logger, closeLog, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fxingest: %v\n", err)
		return exitConfig
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := execute(ctx, cfg, logger)
	if summary != nil {
		printSummary(out, summary)
	}
	if err != nil {
		logger.ErrorContext(ctx, "run_aborted", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fxingest: %v\n", err)
		return exitFailed
	}
	if summary.Failed > 0 || summary.Interrupted > 0 || summary.Unfinished > 0 {
		return exitFailed
	}
	return exitOK
}

// execute wires the pipeline from configuration and runs it.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Summary, error) {
	startYM, err := market.ParseYearMonth(cfg.Request.Start)
	if err != nil {
		return nil, err
	}
	endYM, err := market.ParseYearMonth(cfg.Request.End)
	if err != nil {
		return nil, err
	}
	initial, err := pipeline.BuildRecordSet(
		cfg.Request.Pairs, cfg.Request.Platforms, cfg.Request.Timeframes, startYM, endYM)
	if err != nil {
		return nil, err
	}

	workdir := files.NewWorkdir(cfg.Run.WorkingDir)
	if err := workdir.Ensure(); err != nil {
		return nil, err
	}
	store, err := pipeline.OpenCheckpointStore(workdir.Root())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	enabled, closeStages, err := buildStages(cfg, workdir)
	if err != nil {
		return nil, err
	}
	defer closeStages()

	manager := pipeline.NewManager(store, enabled, pipeline.Config{
		Workers:        cfg.Run.Workers,
		AttemptTimeout: cfg.Run.AttemptTimeout,
		Retry: pipeline.RetryConfig{
			MaxAttempts:  cfg.Run.MaxAttempts,
			InitialDelay: cfg.Run.RetryDelay,
			MaxDelay:     cfg.Run.MaxRetryDelay,
			Multiplier:   2.0,
		},
	})
	ctx = infrastructure.WithTraceID(ctx, manager.RunID())
	logger.InfoContext(ctx, "pipeline_configured",
		slog.Int("records", initial.Len()),
		slog.Int("workers", cfg.Run.Workers))

	return manager.Run(ctx, initial)
}

// buildStages assembles the enabled collaborators in fixed stage order.
func buildStages(cfg *config.Config, workdir files.Workdir) ([]pipeline.Stage, func(), error) {
	client := &http.Client{Timeout: cfg.Run.AttemptTimeout}
	limiter := rate.NewLimiter(rate.Limit(cfg.Run.RequestsPerSec), 1)
	closer := func() {}

	var enabled []pipeline.Stage
	if cfg.Stages.Validate {
		enabled = append(enabled, stages.NewValidateStage(client, limiter))
	}
	if cfg.Stages.Download {
		enabled = append(enabled, stages.NewDownloadStage(client, limiter, workdir))
	}
	if cfg.Stages.Extract {
		enabled = append(enabled, stages.NewExtractStage(workdir))
	}
	if cfg.Stages.Clean {
		enabled = append(enabled, stages.NewCleanStage(workdir))
	}
	if cfg.Stages.Load {
		influx, err := config.LoadInflux(workdir.Root())
		if err != nil {
			return nil, nil, err
		}
		writer := stages.NewInfluxWriter(influx.URL, influx.Token, influx.Org, influx.Bucket)
		sink := stages.NewBatchSink(writer, cfg.Run.BatchSize, cfg.Run.QueueDepth)
		enabled = append(enabled, stages.NewLoadStage(workdir, sink))
		closer = writer.Close
	}
	return enabled, closer, nil
}

// applyFlags lays explicitly passed command-line values over the loaded
// configuration. Stage toggle flags are applied whenever any of them is
// set, so the command line fully describes the stage selection.
func applyFlags(cfg *config.Config, flags *flag.FlagSet,
	pairs, platforms, timeframes, start, end, dataDir string,
	validate, download, extract, clean, load bool) {

	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["p"] {
		cfg.Request.Pairs = splitList(pairs)
	}
	if set["P"] {
		cfg.Request.Platforms = splitList(platforms)
	}
	if set["t"] {
		cfg.Request.Timeframes = splitList(timeframes)
	}
	if set["s"] {
		cfg.Request.Start = start
	}
	if set["e"] {
		cfg.Request.End = end
	}
	if set["d"] {
		cfg.Run.WorkingDir = dataDir
	}
	if set["V"] || set["D"] || set["X"] || set["C"] || set["I"] {
		cfg.Stages = config.StagesConfig{
			Validate: validate,
			Download: download,
			Extract:  extract,
			Clean:    clean,
			Load:     load,
		}
	}
	// Defaults for list flags apply when config carries nothing.
	if len(cfg.Request.Platforms) == 0 {
		cfg.Request.Platforms = splitList(platforms)
	}
	if len(cfg.Request.Timeframes) == 0 {
		cfg.Request.Timeframes = splitList(timeframes)
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	return out
}

// printSummary writes the human-readable run report.
func printSummary(out io.Writer, summary *pipeline.Summary) {
	fmt.Fprintf(out, "\nRun %s finished at %s\n", summary.RunID, time.Now().Format(time.RFC3339))
	fmt.Fprintf(out, "  advanced:    %d\n", summary.Advanced)
	fmt.Fprintf(out, "  skipped:     %d\n", summary.Skipped)
	fmt.Fprintf(out, "  failed:      %d\n", summary.Failed)
	fmt.Fprintf(out, "  interrupted: %d\n", summary.Interrupted)
	fmt.Fprintf(out, "  unfinished:  %d\n", summary.Unfinished)
	for _, failure := range summary.Failures {
		fmt.Fprintf(out, "  - %s [%s]: %s\n", failure.Record, failure.Stage, failure.Reason)
	}
}
