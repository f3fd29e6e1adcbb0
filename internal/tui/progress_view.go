package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/helix/internal/pipeline"
)

var (
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleCached  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
)

// View renders the header, one row per record and recent errors.
func (a *App) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("⬡ HELIX " + a.title))
	b.WriteString("\n")
	b.WriteString(a.renderProgress())
	b.WriteString("\n\n")
	for _, id := range a.records {
		b.WriteString(a.renderRecord(id))
		b.WriteString("\n")
	}
	if len(a.errs) > 0 {
		b.WriteString("\n")
		for _, line := range a.errs {
			b.WriteString(labelStyleFailed.Render("✗ ") + detailTextStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(a.renderFooter())
	width := a.width
	if width <= 0 {
		width = 100
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(b.String())
}

func (a *App) renderProgress() string {
	line := fmt.Sprintf("%d/%d records", len(a.done), len(a.records))
	if a.finished {
		return labelStyleDone.Render("✓ ") + line
	}
	return a.spinner.View() + " " + line
}

func (a *App) renderRecord(id string) string {
	row := a.states[id]
	parts := make([]string, 0, len(a.modules))
	for _, mod := range a.modules {
		parts = append(parts, stateLabel(row[mod]).Render(shortName(mod)))
	}
	marker := "  "
	if a.done[id] {
		marker = labelStyleDone.Render("• ")
	}
	return marker + lipgloss.NewStyle().Width(16).Render(id) + strings.Join(parts, "  ")
}

func (a *App) renderFooter() string {
	switch {
	case a.finished:
		return hintStyle.Render("done")
	case a.cancelling:
		return labelStyleFailed.Render("cancelling, waiting for running modules…")
	default:
		return hintStyle.Render("q: cancel run (no archive is written)")
	}
}

func stateLabel(state pipeline.State) lipgloss.Style {
	switch state {
	case pipeline.StateApplied:
		return labelStyleDone
	case pipeline.StateFailed:
		return labelStyleFailed
	case pipeline.StateCached:
		return labelStyleCached
	case pipeline.StateComputed:
		return labelStyleRunning
	case pipeline.StateSkipped:
		return labelStyleSkipped
	default:
		return detailTextStyle
	}
}

// shortName drops the namespace from module IDs such as helix.modules.summary.
func shortName(moduleID string) string {
	if idx := strings.LastIndex(moduleID, "."); idx >= 0 && idx < len(moduleID)-1 {
		return moduleID[idx+1:]
	}
	return moduleID
}
