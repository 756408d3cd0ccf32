//go:build linux

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/loopbridge/internal/config"
	"github.com/Iron-Ham/loopbridge/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Host an application on a loop thread and drive it from workers",
	Long: `Start a dedicated event-loop thread, create a bridge hosting the selected
application, and fan deferred work out from a pool of worker goroutines.

The run ends when the application asks to quit, when --run-for elapses, or
on SIGINT/SIGTERM. In the last two cases the bridge is torn down by its
owner on the loop thread.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("app", "", "application to host (see 'loopbridge apps')")
	f.Int("workers", 0, "number of worker goroutines")
	f.Int("requests", 0, "deferred calls submitted by each worker")
	f.Duration("run-for", 0, "tear the bridge down after this long (0 runs until interrupted)")

	_ = viper.BindPFlag("bridge.app", f.Lookup("app"))
	_ = viper.BindPFlag("bridge.workers", f.Lookup("workers"))
	_ = viper.BindPFlag("bridge.requests_per_worker", f.Lookup("requests"))
	_ = viper.BindPFlag("bridge.run_for", f.Lookup("run-for"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Bridge.RunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Bridge.RunFor)
		defer cancel()
	}

	res, err := runBridge(ctx, runOptions{
		AppID:             cfg.Bridge.App,
		Registry:          reg,
		Workers:           cfg.Bridge.Workers,
		RequestsPerWorker: cfg.Bridge.RequestsPerWorker,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}

// newLogger writes to stderr unless a log directory is configured, in which
// case the file rotates when max_size_mb is set.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	dir := cfg.ResolveDir()
	if dir == "" || cfg.MaxSizeMB <= 0 {
		return logging.NewLogger(dir, level)
	}
	return logging.NewLoggerWithRotation(dir, level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}
