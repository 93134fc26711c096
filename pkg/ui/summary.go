package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igharvest/pkg/models"
	"igharvest/pkg/scraper"
)

// DefaultMaxProblemRows caps the per-task listing in a summary
const DefaultMaxProblemRows = 20

// RenderSummary renders a run report as a bordered panel: totals first,
// then every task that did not fully succeed, up to maxRows of them.
// maxRows <= 0 lists all of them.
func RenderSummary(report *scraper.Report, maxRows int) string {
	if report == nil {
		return dimStyle.Render("no results")
	}

	s := report.Summary
	rows := []string{
		titleStyle.Render("RUN " + report.RunID),
		"",
		statRow("Tasks", fmt.Sprintf("%d", s.Total)),
		statRow("Success", successStyle.Render(fmt.Sprintf("%d", s.Success))),
		statRow("Partial", warningStyle.Render(fmt.Sprintf("%d", s.PartialSuccess))),
		statRow("Failed", errorStyle.Render(fmt.Sprintf("%d", s.Failed))),
		statRow("Records", fmt.Sprintf("%d", s.Records)),
	}
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		rows = append(rows, statRow("Duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()))
	}

	problems := problemOutcomes(report)
	if len(problems) > 0 {
		rows = append(rows, "", titleStyle.Render("NEEDS ATTENTION"), "")
		shown := problems
		if maxRows > 0 && len(shown) > maxRows {
			shown = shown[:maxRows]
		}
		for _, o := range shown {
			rows = append(rows, problemRow(o))
		}
		if hidden := len(problems) - len(shown); hidden > 0 {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more", hidden)))
		}
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func statRow(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func problemRow(o models.TaskOutcome) string {
	var b strings.Builder
	b.WriteString(StatusStyle(o.Status).Render(string(o.Status)))
	b.WriteString(" ")
	b.WriteString(o.Task.String())
	if o.StopReason != "" {
		b.WriteString(dimStyle.Render(" stop=" + string(o.StopReason)))
	}
	fmt.Fprintf(&b, " records=%d attempts=%d", len(o.Records), o.Attempts)
	if o.Error != "" {
		b.WriteString(" ")
		b.WriteString(errorStyle.Render(o.Error))
	}
	return b.String()
}

// problemOutcomes returns non-successful outcomes, failures before
// partial successes, then by task key
func problemOutcomes(report *scraper.Report) []models.TaskOutcome {
	var out []models.TaskOutcome
	for _, outcomes := range []map[string]models.TaskOutcome{report.Shortcodes, report.Users} {
		for _, o := range outcomes {
			if o.Status != models.StatusSuccess {
				out = append(out, o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == models.StatusFailed
		}
		return out[i].Task.Key() < out[j].Task.Key()
	})
	return out
}
