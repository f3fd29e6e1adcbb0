package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/pipeline"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB74D"))
)

// printReport writes one line per record followed by stale outputs, failures
// and the archive location.
func printReport(w io.Writer, report pipeline.Report) {
	for _, rr := range report.Records {
		status := okStyle.Render("ok")
		switch {
		case rr.Cancelled:
			status = skipStyle.Render("cancelled")
		case rr.Failed():
			status = failStyle.Render("failed")
		}
		fmt.Fprintf(w, "%-20s %s  %s\n", rr.RecordID, status, outcomeSummary(rr.Counts()))
		for _, err := range rr.Stale() {
			fmt.Fprintf(w, "  %s stale output %v\n", warnStyle.Render("!"), err)
		}
	}
	if len(report.Records) > 1 {
		fmt.Fprintf(w, "%-20s %s\n", "total", outcomeSummary(report.Counts()))
	}
	if failures := report.Failures(); len(failures) > 0 {
		fmt.Fprintf(w, "\n%d failure(s):\n", len(failures))
		for _, err := range failures {
			fmt.Fprintf(w, "  %s %v\n", failStyle.Render("✗"), err)
		}
	}
	switch {
	case report.Cancelled:
		fmt.Fprintln(w, failStyle.Render("run cancelled; no archive written"))
	case report.Aborted:
		fmt.Fprintln(w, failStyle.Render("run aborted after a module failure; no archive written"))
	case report.ArchivePath != "":
		fmt.Fprintf(w, "archive: %s\n", report.ArchivePath)
	}
}

func outcomeSummary(counts map[pipeline.State]int) string {
	return fmt.Sprintf("computed %d, cached %d, skipped %d, failed %d",
		counts[pipeline.StateComputed], counts[pipeline.StateCached], counts[pipeline.StateSkipped], counts[pipeline.StateFailed])
}

func optionNames(opts []config.Option) string {
	names := make([]string, 0, len(opts))
	for _, opt := range opts {
		names = append(names, "--"+opt.Name)
	}
	return strings.Join(names, " ")
}
