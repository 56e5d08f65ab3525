package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/hiccup/clock"
	"github.com/wesleyorama2/hiccup/detector"
	"github.com/wesleyorama2/hiccup/internal/config"
	"github.com/wesleyorama2/hiccup/internal/output"
	"github.com/wesleyorama2/hiccup/stats"
)

var (
	runConfigPath string
	runDuration   time.Duration
	runRate       float64
	runWorkers    int
	runJSON       bool
	runNoColor    bool
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic workload and report pause-corrected intervals",
	Long: `Run records a fixed synthetic operation latency at a steady rate and
reports corrected vs. recorded percentiles every interval. Without stalls the
two columns match; a process-wide stall shows up only in the corrected one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "YAML run configuration file")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 10*time.Second, "how long to run")
	runCmd.Flags().Float64Var(&runRate, "rate", 0, "recordings per second (overrides config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "recording goroutines (overrides config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit interval reports and summary as JSON")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "disable colored output")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "log detected pauses as they happen")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// pauseCounter tallies detector notifications for reporting.
type pauseCounter struct {
	mu    sync.Mutex
	count int
	total int64
}

func (p *pauseCounter) HandlePause(length, endTime int64) {
	p.mu.Lock()
	p.count++
	p.total += length
	p.mu.Unlock()
}

func (p *pauseCounter) snapshot() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, time.Duration(p.total)
}

func loadRunConfig() (*config.RunConfig, error) {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.Load(runConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if runRate > 0 {
		cfg.Workload.Rate = runRate
	}
	if runWorkers > 0 {
		cfg.Workload.Workers = runWorkers
	}
	return cfg, cfg.Validate()
}

func runDemo(cmd *cobra.Command) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	logger := newLogger(runVerbose)
	scheme := output.SchemeFor(runNoColor)
	out := cmd.OutOrStdout()

	var detectorLogger *slog.Logger
	if runVerbose {
		detectorLogger = logger
	}
	det, err := detector.NewSimpleDetector(detector.SimpleConfig{
		SleepInterval:         cfg.Detector.SleepInterval.Nanos(),
		SpinMode:              cfg.Detector.Spin,
		NotificationThreshold: cfg.Detector.Threshold.Nanos(),
		Threads:               cfg.Detector.Threads,
		Logger:                detectorLogger,
	})
	if err != nil {
		return err
	}
	defer det.Shutdown()

	ls, err := stats.New(stats.Config{
		LowestTrackableLatency:  cfg.Histogram.Lowest.Nanos(),
		HighestTrackableLatency: cfg.Histogram.Highest.Nanos(),
		SignificantDigits:       cfg.Histogram.SignificantDigits,
		EstimatorWindowLength:   cfg.Estimator.Window,
		EstimatorTimeCap:        cfg.Estimator.TimeCap.Nanos(),
		PauseDetector:           det,
	})
	if err != nil {
		return err
	}
	defer ls.Stop()

	pauses := &pauseCounter{}
	det.AddListener(pauses, false)
	defer det.RemoveListener(pauses)

	logger.Info("starting workload",
		"rate", cfg.Workload.Rate,
		"workers", cfg.Workload.Workers,
		"operationLatency", cfg.Workload.OperationLatency.Std(),
		"duration", runDuration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runDuration)
	defer cancel()

	// Recording workers: each records the fixed synthetic latency on its
	// share of the target rate.
	g, ctx := errgroup.WithContext(ctx)
	perWorker := time.Duration(float64(time.Second) * float64(cfg.Workload.Workers) / cfg.Workload.Rate)
	if perWorker <= 0 {
		perWorker = time.Microsecond
	}
	opLatency := cfg.Workload.OperationLatency.Nanos()
	for w := 0; w < cfg.Workload.Workers; w++ {
		g.Go(func() error {
			ticker := time.NewTicker(perWorker)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := ls.RecordLatency(opLatency); err != nil {
						return fmt.Errorf("recording latency: %w", err)
					}
				}
			}
		})
	}

	// Interval reporter, driven by the shared scheduler.
	var reportMu sync.Mutex
	intervalIndex := 0
	startTime := time.Now()
	correctedAcc := hdrhistogram.New(cfg.Histogram.Lowest.Nanos(), cfg.Histogram.Highest.Nanos(), cfg.Histogram.SignificantDigits)
	uncorrectedAcc := hdrhistogram.New(cfg.Histogram.Lowest.Nanos(), cfg.Histogram.Highest.Nanos(), cfg.Histogram.SignificantDigits)
	lastPauses := 0
	var lastPauseTotal time.Duration

	report := func() {
		reportMu.Lock()
		defer reportMu.Unlock()

		corrected := ls.GetIntervalHistogram()
		uncorrected := ls.GetLatestUncorrectedIntervalHistogram()
		correctedAcc.Merge(corrected)
		uncorrectedAcc.Merge(uncorrected)

		pauseCount, pauseTotal := pauses.snapshot()
		intervalIndex++
		r := &output.IntervalReport{
			Interval:    intervalIndex,
			Elapsed:     time.Since(startTime),
			Corrected:   output.Summarize(corrected),
			Uncorrected: output.Summarize(uncorrected),
			Pauses:      pauseCount - lastPauses,
			PauseTotal:  pauseTotal - lastPauseTotal,
		}
		lastPauses = pauseCount
		lastPauseTotal = pauseTotal

		if runJSON {
			if err := r.WriteJSON(out); err != nil {
				logger.Error("writing report", "err", err)
			}
			return
		}
		r.WriteText(out, scheme)
	}

	scheduler := clock.NewScheduler(clock.System())
	scheduler.SchedulePeriodic(cfg.Report.Interval.Nanos(), report)

	err = g.Wait()
	scheduler.Stop()
	if err != nil {
		return err
	}

	// Final drain plus run summary.
	report()
	pauseCount, pauseTotal := pauses.snapshot()
	summary := &output.RunSummary{
		Duration:    time.Since(startTime),
		Intervals:   intervalIndex,
		Corrected:   output.Summarize(correctedAcc),
		Uncorrected: output.Summarize(uncorrectedAcc),
		Pauses:      pauseCount,
		PauseTotal:  pauseTotal,
	}
	if runJSON {
		return summary.WriteJSON(out)
	}
	summary.WriteText(out, scheme)
	return nil
}
