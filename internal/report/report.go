package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"logsweep/internal/rewrite"
	"logsweep/internal/runner"
	"logsweep/internal/scan"
	"logsweep/internal/strip"
)

const ruleWidth = 60

var (
	headerStyle  = color.New(color.FgBlue, color.Bold)
	infoStyle    = color.New(color.FgCyan)
	successStyle = color.New(color.FgGreen)
	warningStyle = color.New(color.FgYellow)
	errorStyle   = color.New(color.FgRed, color.Bold)
	pathStyle    = color.New(color.FgCyan, color.Bold)
)

// Printer writes the human readable run report. It implements
// runner.Observer so per-file lines appear while the run progresses.
type Printer struct {
	out      io.Writer
	barOut   io.Writer
	target   string
	dryRun   bool
	progress bool
	base     string
	bar      *progressbar.ProgressBar
}

var _ runner.Observer = (*Printer)(nil)

// Options configures a Printer.
type Options struct {
	Target   string // call name shown in messages, e.g. console.log
	DryRun   bool
	Progress bool      // show a progress bar on BarOut
	BarOut   io.Writer // defaults to os.Stderr
}

// New creates a Printer writing to out.
func New(out io.Writer, opts Options) *Printer {
	barOut := opts.BarOut
	if barOut == nil {
		barOut = os.Stderr
	}
	base, _ := os.Getwd()
	return &Printer{
		out:      out,
		barOut:   barOut,
		target:   opts.Target,
		dryRun:   opts.DryRun,
		progress: opts.Progress,
		base:     base,
	}
}

// Banner prints the title block.
func (p *Printer) Banner() {
	title := fmt.Sprintf("%s removal", p.target)
	if p.dryRun {
		title += " (dry run)"
	}
	p.rule()
	headerStyle.Fprintln(p.out, title)
	p.rule()
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Scanning for files...")
}

// RootScanned prints the file count of one root.
func (p *Printer) RootScanned(res scan.RootResult) {
	if res.Missing {
		warningStyle.Fprintf(p.out, "Warning: Directory %s does not exist, skipping...\n", p.display(res.Root))
		return
	}
	fmt.Fprintf(p.out, "Found %d files in %s\n", len(res.Candidates), p.display(res.Root))
}

// Started prints the total and starts the progress bar.
func (p *Printer) Started(total int) {
	if total == 0 {
		warningStyle.Fprintln(p.out, "No files found to process!")
		return
	}
	fmt.Fprintf(p.out, "Total: %d files to process\n\n", total)
	fmt.Fprintln(p.out, "Processing files...")

	if p.progress {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.barOut),
			progressbar.OptionSetDescription("rewriting"),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}
}

// FileDone prints a line for every file that changed or failed.
func (p *Printer) FileDone(out rewrite.Outcome) {
	if p.bar != nil {
		_ = p.bar.Clear()
	}

	switch {
	case out.Failed():
		errorStyle.Fprint(p.out, "✗ ")
		fmt.Fprintf(p.out, "Error processing %s: %v\n", p.display(out.Candidate.Path), out.Err)
	case out.Changed():
		verb := "Removed"
		if out.Action == rewrite.ActionDryRun {
			verb = "Would remove"
		}
		successStyle.Fprint(p.out, "✓ ")
		fmt.Fprintf(p.out, "%s: %s %d %s(s)\n", p.display(out.Candidate.Path), verb, out.Removed, p.target)
		if out.Action == rewrite.ActionDryRun {
			p.preview(out.Spans)
		}
	}

	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Summary prints the totals and the modified-file list.
func (p *Printer) Summary(s *runner.Summary) {
	p.finishBar()

	fmt.Fprintln(p.out)
	p.rule()
	headerStyle.Fprintln(p.out, "Summary")
	p.rule()
	fmt.Fprintf(p.out, "Total files processed: %d\n", s.Scanned)
	fmt.Fprintf(p.out, "Successfully processed: %d\n", s.Succeeded)
	if s.Failed > 0 {
		errorStyle.Fprintf(p.out, "Failed: %d\n", s.Failed)
	} else {
		fmt.Fprintf(p.out, "Failed: %d\n", s.Failed)
	}
	fmt.Fprintf(p.out, "Files modified: %d\n", s.Modified)
	fmt.Fprintf(p.out, "Total %s statements removed: %d\n", p.target, s.Removed)
	if s.RunID != 0 {
		infoStyle.Fprintf(p.out, "Run recorded as #%d\n", s.RunID)
	}
	fmt.Fprintln(p.out)

	if modified := s.ModifiedFiles(); len(modified) > 0 {
		if p.dryRun {
			fmt.Fprintln(p.out, "Files that would be modified:")
		} else {
			fmt.Fprintln(p.out, "Modified files:")
		}
		for _, out := range modified {
			fmt.Fprintf(p.out, "  - %s (%d removal(s))\n", pathStyle.Sprint(p.display(out.Candidate.Path)), out.Removed)
		}
		fmt.Fprintln(p.out)
	}

	if s.Interrupted {
		return
	}
	if s.Failed > 0 {
		warningStyle.Fprintf(p.out, "%s removal completed with %d failure(s)\n", p.target, s.Failed)
		return
	}
	successStyle.Fprintf(p.out, "✓ %s removal completed!\n", p.target)
}

// Cancelled prints the interrupt notice.
func (p *Printer) Cancelled() {
	p.finishBar()
	warningStyle.Fprintln(p.out, "\nOperation cancelled by user")
}

// Fatal prints an unexpected top-level error.
func (p *Printer) Fatal(err error) {
	p.finishBar()
	errorStyle.Fprintf(p.out, "\nFatal error: %v\n", err)
}

// preview lists the 1-based line ranges a dry run would delete.
func (p *Printer) preview(spans []strip.Span) {
	for _, sp := range spans {
		if sp.Lines() == 1 {
			fmt.Fprintf(p.out, "    line %d\n", sp.Start+1)
			continue
		}
		fmt.Fprintf(p.out, "    lines %d-%d\n", sp.Start+1, sp.End+1)
	}
}

func (p *Printer) finishBar() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func (p *Printer) rule() {
	fmt.Fprintln(p.out, strings.Repeat("=", ruleWidth))
}

// display shows paths relative to the working directory when they are below it.
func (p *Printer) display(path string) string {
	if p.base == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(p.base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
