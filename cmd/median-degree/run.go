package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alvmarrod/median-degree/internal/config"
	"github.com/alvmarrod/median-degree/internal/ingest"
	"github.com/alvmarrod/median-degree/internal/metrics"
	"github.com/alvmarrod/median-degree/internal/runner"
	"github.com/alvmarrod/median-degree/internal/storage"
	"github.com/alvmarrod/median-degree/internal/version"
	"github.com/alvmarrod/median-degree/internal/window"
)

// Termination reasons written to the metrics file
const (
	reasonCompleted = "completed"
	reasonSignal    = "signal"
	reasonError     = "error"
)

type runOptions struct {
	configPath      string
	inputs          []string
	url             string
	output          string
	dbPath          string
	windowSeconds   int
	checkInvariants bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute rolling medians for one or more inputs",
		Long: `Reads records from --input files (or --url, or stdin when neither is
given) and writes one median line per valid record to --output (or stdout).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return execute(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON or YAML config file")
	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "input file, repeatable")
	cmd.Flags().StringVar(&opts.url, "url", "", "fetch input from an HTTP(S) URL")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "record medians into this SQLite database")
	cmd.Flags().IntVar(&opts.windowSeconds, "window", config.DefaultWindowSeconds, "window length in seconds")
	cmd.Flags().BoolVar(&opts.checkInvariants, "check-invariants", false, "validate window state after every event")

	return cmd
}

// resolveConfig loads the config file, if any, and lets explicit flags override it
func resolveConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputPaths = opts.inputs
	}
	if flags.Changed("url") {
		cfg.InputURL = opts.url
	}
	if flags.Changed("output") {
		cfg.OutputPath = opts.output
	}
	if flags.Changed("db") {
		cfg.DBPath = opts.dbPath
	}
	if flags.Changed("window") {
		cfg.WindowSeconds = opts.windowSeconds
	}
	if flags.Changed("check-invariants") {
		cfg.CheckInvariants = opts.checkInvariants
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, cfg *config.Config) error {
	logrus.SetLevel(cfg.Level())
	logrus.Infof("median-degree v%s starting (window=%v)", version.Version, cfg.Window())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store *storage.Storage
	if cfg.DBPath != "" {
		s, err := storage.NewStorage(cfg.DBPath, cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer s.Close()
		store = s
		logrus.Infof("Database initialized: %s", cfg.DBPath)
	}

	sources, closeSources, err := openSources(ctx, cfg, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer closeSources()

	out := cmd.OutOrStdout()
	if cfg.OutputPath != "" {
		file, err := os.Create(cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	controller := window.NewController(
		window.WithWindow(cfg.Window()),
		window.WithInvariantChecks(cfg.CheckInvariants),
	)
	tracker := metrics.NewTracker()
	exporter := metrics.NewExporter()

	stopProgress := startProgressLogger(tracker, cfg.ProgressInterval())
	summary, runErr := runner.NewRunner(cfg, controller, tracker, exporter, store).Run(ctx, sources, out)
	stopProgress()

	reason := reasonCompleted
	switch {
	case errors.Is(runErr, context.Canceled):
		reason = reasonSignal
		logrus.Warn("Interrupted, output is partial")
		runErr = nil
	case runErr != nil:
		reason = reasonError
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	if summary.RunID != "" {
		logrus.Infof("Run %s recorded %d events", summary.RunID, summary.Events)
	}

	if cfg.MetricsPath != "" {
		if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", cfg.MetricsPath)
		}
	}
	if cfg.PrometheusTextfile != "" {
		if err := exporter.WriteTextfile(cfg.PrometheusTextfile); err != nil {
			logrus.Errorf("Failed to write Prometheus textfile: %v", err)
		}
	}

	return runErr
}

// openSources resolves the configured inputs; stdin is the fallback
func openSources(ctx context.Context, cfg *config.Config, stdin io.Reader) ([]runner.Source, func(), error) {
	if cfg.InputURL != "" {
		body, err := ingest.FetchRemote(ctx, cfg.InputURL, cfg.FetchTimeout())
		if err != nil {
			return nil, nil, err
		}
		return []runner.Source{{Name: cfg.InputURL, Reader: bytes.NewReader(body)}}, func() {}, nil
	}

	if len(cfg.InputPaths) == 0 {
		return []runner.Source{{Name: "stdin", Reader: stdin}}, func() {}, nil
	}

	files := make([]*os.File, 0, len(cfg.InputPaths))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	sources := make([]runner.Source, 0, len(cfg.InputPaths))
	for _, path := range cfg.InputPaths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open input: %w", err)
		}
		files = append(files, f)
		sources = append(sources, runner.Source{Name: path, Reader: f})
	}
	return sources, closeAll, nil
}

// startProgressLogger logs tracker progress every interval until the returned func is called
func startProgressLogger(tracker *metrics.Tracker, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
