package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/appchangelog/config"
	"github.com/aluiziolira/appchangelog/models"
	"github.com/aluiziolira/appchangelog/parser"
	"github.com/aluiziolira/appchangelog/pipeline"
	"github.com/aluiziolira/appchangelog/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const about = `appchangelog retrieves rating and version history for each app listed in the
input CSV and writes one report line per app.

Input columns (no header, '|' quotes fields):

    row number, company name, app store URL

Output columns:

    row number, company name, app store URL, number of ratings, average rating,
    app age in days, then a version/release date pair for every version
    released in the last two years.

Rows that fail are appended to the error log unchanged so they can be rerun.`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "%s\nerror: %v\n", cmd.UseLine(), err)
		return exitUsage
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitError
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	defaults := config.DefaultConfig()
	var configFile string

	cmd := &cobra.Command{
		Use:           "appchangelog [flags]",
		Short:         "Build an app rating and changelog report from store pages",
		Long:          about,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, stdout)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringP("input", "i", defaults.InputFile, "Input CSV")
	flags.StringP("output", "o", defaults.OutputFile, "Output CSV")
	flags.StringP("log", "l", defaults.ErrorLog, "Error log CSV (appended)")
	flags.BoolP("overwrite", "x", false, "Overwrite an existing output file")
	flags.BoolP("verbose", "v", false, "Print per-row diagnostics")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.String("format", defaults.OutputFormat, "Output format: csv or dual (csv plus <output>.jsonl)")
	flags.Int("cache-size", defaults.CacheSize, "Pages kept in memory for repeated URLs (0 disables)")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	return cmd
}

// resolveConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order.
func resolveConfig(cmd *cobra.Command, configFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, usageError{err}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, usageError{err}
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputFile, _ = flags.GetString("input")
	}
	if flags.Changed("output") {
		cfg.OutputFile, _ = flags.GetString("output")
	}
	if flags.Changed("log") {
		cfg.ErrorLog, _ = flags.GetString("log")
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite, _ = flags.GetBool("overwrite")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("format") {
		cfg.OutputFormat, _ = flags.GetString("format")
	}
	if flags.Changed("cache-size") {
		cfg.CacheSize, _ = flags.GetInt("cache-size")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError{err}
	}
	if info, err := os.Stat(cfg.InputFile); err != nil || !info.Mode().IsRegular() {
		return nil, usageError{fmt.Errorf("input file does not exist: %s", cfg.InputFile)}
	}
	if _, err := os.Stat(cfg.OutputFile); err == nil && !cfg.Overwrite {
		return nil, usageError{fmt.Errorf("output file exists and overwrite is not set: %s", cfg.OutputFile)}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	logger, level := newLogger(stdout, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	input, err := os.Open(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		return fmt.Errorf("initialising fetcher: %w", err)
	}

	report, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := report.Close(); err != nil {
			slog.Error("close report", slog.Any("error", err))
		}
	}()

	errorLog, err := pipeline.OpenErrorLog(cfg.ErrorLog)
	if err != nil {
		return fmt.Errorf("opening error log: %w", err)
	}
	defer func() {
		if err := errorLog.Close(); err != nil {
			slog.Error("close error log", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	today := time.Now()
	processor := pipeline.NewProcessor(
		fetcher,
		parser.NewScriptExtractor(cfg.ScriptIndex, cfg.ScriptMarker),
		parser.NewMapper(cfg.MaxAgeDays, func() time.Time { return today }),
		report,
		errorLog,
		metrics,
	)

	slog.Info("starting run",
		slog.String("input", cfg.InputFile),
		slog.String("output", cfg.OutputFile),
		slog.String("error_log", cfg.ErrorLog),
	)

	result, err := processor.Run(ctx, input)
	if result != nil {
		printSummary(stdout, result, cfg)
	}
	if errors.Is(err, context.Canceled) {
		slog.Info("run interrupted, completed rows are saved")
	}
	return err
}

func createWriter(format, filename string) (pipeline.ReportWriter, error) {
	switch format {
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename, filename+".jsonl")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(w io.Writer, result *models.RunResult, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Run complete")
	fmt.Fprintf(w, "  Rows read:     %d\n", result.RowsRead)
	fmt.Fprintf(w, "  Reported:      %d\n", result.Succeeded)
	fmt.Fprintf(w, "  No data:       %d\n", result.Empty)
	fmt.Fprintf(w, "  Failed:        %d\n", result.Failed)
	fmt.Fprintf(w, "  Malformed:     %d\n", result.Malformed)
	if len(result.FailuresByType) > 0 {
		fmt.Fprintf(w, "  Failure types: %v\n", result.FailuresByType)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Fprintf(w, "  Output file:   %s\n", cfg.OutputFile)
	fmt.Fprintf(w, "  Error log:     %s\n", cfg.ErrorLog)
	fmt.Fprintln(w, separator)
}

func newLogger(w io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
