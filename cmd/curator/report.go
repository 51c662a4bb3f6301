package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/helixir/training-evidence-curator/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("#F38BA8"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#45475A"))
)

var reportHeaders = []string{
	"Domain", "Stage", "Collected", "Clusters", "Dupes", "Accepted",
	"Rejected", "Undecidable", "Full text", "Embedded", "Stored", "Conflicts",
}

// reportRows renders one row per domain plus a totals row.
func reportRows(r *pipeline.Report) [][]string {
	rows := make([][]string, 0, len(r.Domains)+1)
	for _, s := range r.Domains {
		stage := string(s.Stage)
		if s.ResumedFrom != "" {
			stage += " (resumed after " + string(s.ResumedFrom) + ")"
		}
		if s.AlreadyCommitted {
			stage += " (already committed)"
		}
		rows = append(rows, countRow(s.Domain, stage, s.Counts))
	}
	return append(rows, countRow("total", "", r.Totals()))
}

func countRow(name, stage string, c pipeline.Counts) []string {
	return []string{
		name, stage,
		strconv.Itoa(c.Collected),
		strconv.Itoa(c.Clusters),
		strconv.Itoa(c.Duplicates),
		strconv.Itoa(c.Accepted),
		strconv.Itoa(c.Rejected),
		strconv.Itoa(c.Undecidable),
		strconv.Itoa(c.Enriched),
		strconv.Itoa(c.Embedded),
		strconv.Itoa(c.Persisted),
		strconv.Itoa(c.Conflicts),
	}
}

// renderReport formats a run report as a table followed by one line per
// failed domain or failing source.
func renderReport(r *pipeline.Report) string {
	failedRows := make(map[int]bool)
	for i, s := range r.Domains {
		if s.Failed() {
			failedRows[i] = true
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(reportHeaders...).
		Rows(reportRows(r)...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case failedRows[row]:
				return failedStyle
			default:
				return cellStyle
			}
		})

	var b strings.Builder
	b.WriteString(t.String())
	b.WriteString("\n")
	fmt.Fprintf(&b, "finished in %s\n", r.Duration.Round(time.Millisecond))
	for _, s := range r.Domains {
		if s.Err != nil {
			fmt.Fprintf(&b, "%s failed: %v\n", s.Domain, s.Err)
		}
		for _, src := range s.FailedSources {
			fmt.Fprintf(&b, "%s: source %s failed for every query\n", s.Domain, src)
		}
		if s.Mirrored > 0 {
			fmt.Fprintf(&b, "%s: mirrored %d vectors\n", s.Domain, s.Mirrored)
		}
	}
	return b.String()
}
