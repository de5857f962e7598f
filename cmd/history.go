package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"logsweep/internal/config"
	"logsweep/internal/database"
	"logsweep/internal/exitcodes"
)

var (
	historyDB     string
	historyRecent int
	historyRun    int64
	historyPath   string
	historyStats  bool
	historyDays   int
	historyJSON   bool
	historyVacuum bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the run history database",
	Example: `  logsweep history --recent 10            # Show 10 most recent runs
  logsweep history --run 42               # Show the files of run 42
  logsweep history --path '%/App.tsx'     # Show results for matching paths
  logsweep history --stats --days 7       # Show statistics for the last week
  logsweep history --vacuum               # Compact the database file`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", config.DefaultDatabasePath, "Path to run history database")
	historyCmd.Flags().IntVar(&historyRecent, "recent", 0, "Show N most recent runs")
	historyCmd.Flags().Int64Var(&historyRun, "run", 0, "Show the file results of one run")
	historyCmd.Flags().StringVar(&historyPath, "path", "", "Filter file results by path pattern (SQL LIKE syntax)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show run statistics")
	historyCmd.Flags().IntVar(&historyDays, "days", 30, "Number of days for statistics")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	historyCmd.Flags().BoolVar(&historyVacuum, "vacuum", false, "Compact the database file")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	path := historyDB
	if !cmd.Flags().Changed("db") && cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return withExitCode(exitcodes.InvalidConfig, err)
		}
		if cfg.HistoryEnabled() {
			path = cfg.DatabasePath
		}
	}

	if !historyStats && !historyVacuum && historyRecent <= 0 && historyRun <= 0 && historyPath == "" {
		_ = cmd.Usage()
		return withExitCode(exitcodes.InvalidConfig, nil)
	}

	out := cmd.OutOrStdout()

	// a query must not create the database
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "No run history at %s\n", path)
			return nil
		}
		return withExitCode(exitcodes.RuntimeError, fmt.Errorf("open database %s: %w", path, err))
	}

	db, err := database.NewHistoryDB(path)
	if err != nil {
		return withExitCode(exitcodes.RuntimeError, fmt.Errorf("open database %s: %w", path, err))
	}
	defer db.Close()

	switch {
	case historyVacuum:
		err = vacuum(out, db, path)
	case historyStats:
		err = showStats(out, db, historyDays, historyJSON)
	case historyRun > 0:
		err = showRun(out, db, historyRun, historyJSON)
	case historyRecent > 0:
		err = showRecent(out, db, historyRecent, historyJSON)
	default:
		err = showByPath(out, db, historyPath, historyJSON)
	}
	if err != nil {
		return withExitCode(exitcodes.RuntimeError, err)
	}
	return nil
}

func vacuum(w io.Writer, db *database.HistoryDB, path string) error {
	before := fileSize(path)
	if err := db.Vacuum(); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	fmt.Fprintf(w, "Vacuumed %s: %s -> %s\n", path, formatBytes(before), formatBytes(fileSize(path)))
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func showStats(w io.Writer, db *database.HistoryDB, days int, jsonOutput bool) error {
	stats, err := db.Stats(days)
	if err != nil {
		return fmt.Errorf("get statistics: %w", err)
	}
	if jsonOutput {
		return writeJSON(w, stats)
	}

	fmt.Fprintf(w, "Run Statistics (Last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Runs:               %d (%d cancelled)\n", stats.Runs, stats.CancelledRuns)
	fmt.Fprintf(w, "Files Processed:    %d\n", stats.FilesProcessed)
	fmt.Fprintf(w, "Files Modified:     %d\n", stats.FilesModified)
	fmt.Fprintf(w, "Files Failed:       %d\n", stats.FilesFailed)
	fmt.Fprintf(w, "Statements Removed: %d\n", stats.StatementsRemoved)
	fmt.Fprintf(w, "Database Size:      %s\n", formatBytes(stats.DatabaseSizeBytes))

	if len(stats.ByAction) > 0 {
		actions := make([]string, 0, len(stats.ByAction))
		for action := range stats.ByAction {
			actions = append(actions, action)
		}
		sort.Strings(actions)

		fmt.Fprintln(w, "\nBy Action:")
		for _, action := range actions {
			fmt.Fprintf(w, "  %-15s %d\n", action, stats.ByAction[action])
		}
	}
	return nil
}

func showRecent(w io.Writer, db *database.HistoryDB, limit int, jsonOutput bool) error {
	runs, err := db.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("get recent runs: %w", err)
	}
	if jsonOutput {
		return writeJSON(w, runs)
	}
	printRuns(w, runs)
	return nil
}

func showRun(w io.Writer, db *database.HistoryDB, id int64, jsonOutput bool) error {
	run, err := db.GetRun(id)
	if err != nil {
		return err
	}
	files, err := db.RunFiles(id)
	if err != nil {
		return fmt.Errorf("get files of run %d: %w", id, err)
	}
	if jsonOutput {
		return writeJSON(w, struct {
			Run   *database.RunRecord   `json:"run"`
			Files []database.FileRecord `json:"files"`
		}{run, files})
	}

	printRuns(w, []database.RunRecord{*run})
	fmt.Fprintln(w)
	printFiles(w, files)
	return nil
}

func showByPath(w io.Writer, db *database.HistoryDB, pattern string, jsonOutput bool) error {
	files, err := db.FilesByPath(pattern)
	if err != nil {
		return fmt.Errorf("query by path: %w", err)
	}
	if jsonOutput {
		return writeJSON(w, files)
	}

	fmt.Fprintf(w, "File results matching path pattern: %s\n\n", pattern)
	printFiles(w, files)
	return nil
}

func printRuns(w io.Writer, runs []database.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tStarted\tStatus\tMode\tScanned\tModified\tFailed\tRemoved\tRoots")
	_, _ = fmt.Fprintln(tw, "--\t-------\t------\t----\t-------\t--------\t------\t-------\t-----")

	for _, r := range runs {
		mode := "write"
		if r.DryRun {
			mode = "dry-run"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, mode,
			r.Scanned, r.Modified, r.Failed, r.Removed, strings.Join(r.Roots, ","))
	}
	_ = tw.Flush()
}

func printFiles(w io.Writer, files []database.FileRecord) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Run\tTimestamp\tAction\tRemoved\tSaved\tPath")
	_, _ = fmt.Fprintln(tw, "---\t---------\t------\t-------\t-----\t----")

	for _, f := range files {
		path := f.Path
		if f.ErrorMessage != "" {
			path += " (" + f.ErrorMessage + ")"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			f.RunID, f.Timestamp.Local().Format("2006-01-02 15:04:05"), f.Action,
			f.Removed, formatBytes(f.BytesBefore-f.BytesAfter), path)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
