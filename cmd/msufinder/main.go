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

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/fetcher"
	"github.com/aluiziolira/go-msu-finder/models"
	"github.com/aluiziolira/go-msu-finder/pipeline"
	"github.com/aluiziolira/go-msu-finder/resolver"
	"github.com/aluiziolira/go-msu-finder/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := newRootCmd(func(cmd *cobra.Command, cfg *config.Config) error {
		return run(cmd.Context(), cfg, os.Stdout)
	})
	err := cmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

type runOutcome struct {
	result *models.RunResult
	err    error
}

// run executes one finder session, printing links and the farewell to
// stdout. opts are applied to the fetcher after the metrics option.
func run(ctx context.Context, cfg *config.Config, stdout io.Writer, opts ...fetcher.Option) error {
	logger, level := newLogger(cfg.Quiet)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	metrics := fetcher.NewMetrics()
	f := fetcher.New(cfg, append([]fetcher.Option{fetcher.WithMetrics(metrics)}, opts...)...)
	writer, err := createWriter(cfg, stdout)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer stopMetricsServer(metricsServer)

	p := pipeline.New(newSearcher(cfg, f), resolver.New(f, cfg.Hosts), writer, cfg)

	done := make(chan runOutcome, 1)
	go func() {
		result, err := p.Run(ctx)
		done <- runOutcome{result: result, err: err}
	}()

	var outcome runOutcome
	select {
	case <-ctx.Done():
		sayGoodbye(stdout)
		return nil
	case outcome = <-done:
	}

	if outcome.err != nil {
		if errors.Is(outcome.err, context.Canceled) && ctx.Err() != nil {
			sayGoodbye(stdout)
			return nil
		}
		return outcome.err
	}

	result := outcome.result
	result.RequestCount = f.Requests()
	result.RetryCount = f.Retries()
	metrics.AddLinks(len(result.Links))

	if len(result.Links) > 0 {
		if err := writer.Validate(); err != nil {
			return fmt.Errorf("output validation failed: %w", err)
		}
	}

	logSummary(result, cfg.OutputFile)
	return nil
}

func newSearcher(cfg *config.Config, f *fetcher.Fetcher) search.Searcher {
	if cfg.SearchEngine == config.EngineWebSearch {
		return search.NewWebSearch(f, cfg.Hosts, cfg.APIKey, cfg.SearchEngineID)
	}
	return search.NewTechnetSearch(f, cfg.Hosts)
}

// createWriter always prints links to stdout and, when an output file is
// set, writes them there in the configured format as well.
func createWriter(cfg *config.Config, out io.Writer) (pipeline.OutputWriter, error) {
	stdout := pipeline.NewLineWriter(out)
	if cfg.OutputFile == "" {
		return stdout, nil
	}

	var (
		file pipeline.OutputWriter
		err  error
	)
	switch cfg.OutputFormat {
	case config.FormatText:
		file, err = pipeline.NewLineFileWriter(cfg.OutputFile)
	case config.FormatCSV:
		file, err = pipeline.NewCSVWriter(cfg.OutputFile)
	case config.FormatJSON:
		file, err = pipeline.NewJSONWriter(cfg.OutputFile)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
	if err != nil {
		return nil, err
	}
	return pipeline.NewMultiWriter(stdout, file), nil
}

func startMetricsServer(addr string, metrics *fetcher.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}

	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func sayGoodbye(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Good bye")
}

func logSummary(result *models.RunResult, outputFile string) {
	attrs := []any{
		slog.Int("bulletins", len(result.Bulletins)),
		slog.Int("links", len(result.Links)),
		slog.Int("requests", result.RequestCount),
		slog.Int("retries", result.RetryCount),
		slog.Int("failed_bulletins", len(result.FailedBulletins)),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	}
	if len(result.Outcomes) > 0 {
		attrs = append(attrs, slog.Any("outcomes", result.Outcomes))
	}
	if outputFile != "" {
		attrs = append(attrs, slog.String("output_file", outputFile))
	}
	slog.Debug("run complete", attrs...)
}

// newLogger logs to stderr so stdout carries nothing but links.
func newLogger(quiet bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if quiet {
		level.Set(slog.LevelInfo)
	} else {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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
