package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"logsweep/internal/exitcodes"
	"logsweep/internal/logging"
	"logsweep/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [roots...]",
	Short: "Sweep once, then sweep files again whenever they are saved",
	Example: `  logsweep watch src
  logsweep watch --debounce 500ms --dry-run frontend/src`,
	RunE: runWatch,
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period after the last change before a file is swept (default 200ms)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, args)
	if err != nil {
		return withExitCode(exitcodes.InvalidConfig, err)
	}
	if cmd.Flags().Changed("debounce") {
		if watchDebounce <= 0 {
			return withExitCode(exitcodes.InvalidConfig, fmt.Errorf("--debounce must be positive, got %s", watchDebounce))
		}
		cfg.Watch.Debounce = watchDebounce
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return withExitCode(exitcodes.RuntimeError, err)
	}
	defer func() { _ = closeLog() }()

	history, closeHistory := openHistory(cfg, logger)
	defer closeHistory()

	printer := newPrinter(cmd, cfg)
	printer.Banner()
	if err := sweep(cmd.Context(), cfg, logger, history, printer); err != nil {
		var ee *exitError
		if errors.As(err, &ee) && ee.code != exitcodes.Failure {
			return err
		}
		if cmd.Context().Err() != nil {
			return err
		}
		// failed files are reported; keep watching so they can be fixed
	}

	w, err := watch.New(cfg, watch.Options{Logger: logger, Handler: printer.FileDone})
	if err != nil {
		return withExitCode(exitcodes.RuntimeError, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nWatching %d root(s) for changes (Ctrl-C to stop)...\n", len(w.Roots()))
	if err := w.Run(cmd.Context()); err != nil {
		return withExitCode(exitcodes.RuntimeError, err)
	}
	fmt.Fprintln(out, "Stopped watching")
	return nil
}
