package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logsweep/internal/config"
	"logsweep/internal/database"
	"logsweep/internal/exitcodes"
	"logsweep/internal/logging"
	"logsweep/internal/report"
	"logsweep/internal/runner"
)

var (
	extensions      []string
	skipDirs        []string
	targetCall      string
	dryRun          bool
	dbPath          string
	noDB            bool
	metricsTextfile string
	maxCPUPercent   float64
	showProgress    bool
)

var runCmd = &cobra.Command{
	Use:   "run [roots...]",
	Short: "Remove target call statements under the given roots",
	Example: `  logsweep run                          # default roots frontend/src and backend
  logsweep run --dry-run src            # report without writing
  logsweep run --ext .vue --skip vendor web
  logsweep run --target console.debug src`,
	RunE: runSweep,
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "File extensions to process (repeatable, replaces the configured list)")
	cmd.Flags().StringSliceVar(&skipDirs, "skip", nil, "Directory names or paths to skip (repeatable, replaces the configured list)")
	cmd.Flags().StringVar(&targetCall, "target", "", "Call to remove (default console.log)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without writing files")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the run history database")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "Do not record this run in the history database")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	cmd.Flags().Float64Var(&maxCPUPercent, "max-cpu", 0, "Throttle to roughly this CPU percentage (0 disables)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar on stderr")
}

func init() {
	addRunFlags(runCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd, args)
	if err != nil {
		return withExitCode(exitcodes.InvalidConfig, err)
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
	return sweep(cmd.Context(), cfg, logger, history, printer)
}

// sweep performs one run and maps its result to the command exit code.
func sweep(ctx context.Context, cfg *config.Config, logger *zap.Logger, history runner.History, printer *report.Printer) error {
	summary, err := runner.Run(ctx, cfg, runner.Options{
		Logger:   logger,
		History:  history,
		Observer: printer,
	})
	switch {
	case errors.Is(err, context.Canceled):
		if summary != nil {
			printer.Summary(summary)
		}
		printer.Cancelled()
		return withExitCode(exitcodes.Failure, nil)
	case err != nil:
		printer.Fatal(err)
		return withExitCode(exitcodes.RuntimeError, nil)
	}

	printer.Summary(summary)
	if !summary.OK() {
		return withExitCode(exitcodes.Failure, nil)
	}
	return nil
}

// openHistory opens the run history database. A database that cannot be
// opened is logged and the run continues without history.
func openHistory(cfg *config.Config, logger *zap.Logger) (runner.History, func()) {
	if !cfg.HistoryEnabled() {
		return nil, func() {}
	}
	db, err := database.NewHistoryDB(cfg.DatabasePath)
	if err != nil {
		logger.Warn("run history disabled", zap.String("path", cfg.DatabasePath), zap.Error(err))
		return nil, func() {}
	}
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close history database", zap.Error(err))
		}
	}
}

func newPrinter(cmd *cobra.Command, cfg *config.Config) *report.Printer {
	return report.New(cmd.OutOrStdout(), report.Options{
		Target:   cfg.TargetCall,
		DryRun:   cfg.DryRun,
		Progress: showProgress,
		BarOut:   cmd.ErrOrStderr(),
	})
}

// loadRunConfig applies, in increasing precedence, the defaults, the config
// file and the command-line flags.
func loadRunConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if len(args) > 0 {
		cfg.Roots = args
	}
	if flags.Changed("ext") {
		cfg.Extensions = extensions
	}
	if flags.Changed("skip") {
		cfg.SkipDirs = skipDirs
	}
	if flags.Changed("target") {
		cfg.TargetCall = targetCall
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if flags.Changed("db") {
		cfg.DatabasePath = dbPath
	}
	if noDB {
		cfg.DatabasePath = ""
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.TextfilePath = metricsTextfile
	}
	if flags.Changed("max-cpu") {
		cfg.ResourceLimits.MaxCPUPercent = maxCPUPercent
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
