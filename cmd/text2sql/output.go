package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"text2sql/internal/assistant"
	"text2sql/internal/components"
	"text2sql/internal/evaluator"
	"text2sql/internal/metrics"
	"text2sql/internal/safety"
)

const banner = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var (
	colorOK    = lipgloss.Color("#2CD7C7")
	colorWarn  = lipgloss.Color("#F4D03F")
	colorError = lipgloss.Color("#E74C3C")
	colorMuted = lipgloss.Color("#2C4A54")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	errStyle   = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	sqlStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// interactive reports whether w is a terminal. Non-terminal output defaults
// to JSON so the commands compose with other tools.
func interactive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTitle(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", banner, titleStyle.Render(title), banner)
}

func printAnswer(w io.Writer, ans *assistant.Answer) {
	fmt.Fprintln(w, sqlStyle.Render(ans.SQL))
	switch {
	case ans.Error != "":
		fmt.Fprintln(w, errStyle.Render("✗ "+ans.Error))
		if ans.Safety != nil {
			fmt.Fprintln(w, mutedStyle.Render(describeReport(ans.Safety)))
		}
	case ans.Executed():
		fmt.Fprintln(w, rowsTable(ans.Columns, ans.Data))
		shown := len(ans.Data)
		note := fmt.Sprintf("%d row(s)", *ans.Rows)
		if shown < *ans.Rows {
			note = fmt.Sprintf("%d of %d row(s)", shown, *ans.Rows)
		}
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s · generated in %.2fs", note, ans.GenerationTime)))
	default:
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("not executed · generated in %.2fs", ans.GenerationTime)))
	}
}

func rowsTable(columns []string, rows []map[string]interface{}) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(columns...)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(row[c])
		}
		t.Row(cells...)
	}
	return t.String()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

func printVerdict(w io.Writer, v safety.Verdict) {
	if v.Safe {
		fmt.Fprintln(w, okStyle.Render("✓ safe"))
	} else {
		fmt.Fprintln(w, errStyle.Render("✗ unsafe"))
	}
	fmt.Fprintln(w, sqlStyle.Render(v.SQL))
	if !v.Safe {
		fmt.Fprintln(w, mutedStyle.Render(describeReport(&v.Report)))
	}
	if v.Injection {
		fmt.Fprintln(w, warnStyle.Render("⚠ injection pattern: "+v.Fingerprint))
	}
}

func printVerification(w io.Writer, v assistant.Verification) {
	fmt.Fprintln(w, sqlStyle.Render(v.SQL))
	if !v.Valid {
		fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("✗ %s: %s", v.Stage, v.Error)))
		if v.Safety != nil {
			fmt.Fprintln(w, mutedStyle.Render(describeReport(v.Safety)))
		}
		return
	}
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✓ valid · %d row(s)", v.Rows)))
	for _, warning := range v.Warnings {
		fmt.Fprintln(w, warnStyle.Render("⚠ "+warning))
	}
}

func describeReport(r *safety.Report) string {
	parts := []string{"reason: " + string(r.Reason)}
	if r.Keyword != "" {
		parts = append(parts, "keyword: "+r.Keyword)
	}
	if r.Detail != "" {
		parts = append(parts, r.Detail)
	}
	return strings.Join(parts, " · ")
}

func printScore(w io.Writer, m metrics.SQLMetrics, cm metrics.ComponentMetrics) {
	fmt.Fprintf(w, "exact match %.0f · precision %.3f · recall %.3f · F1 %.3f · syntax valid %v\n",
		m.ExactMatch, m.Precision, m.Recall, m.F1Score, m.SyntaxValid)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("component", "precision", "recall", "f1", "exact")
	for _, ct := range components.ClauseTypes {
		a, ok := cm.Components[ct]
		if !ok {
			continue
		}
		t.Row(string(ct),
			fmt.Sprintf("%.3f", a.Precision),
			fmt.Sprintf("%.3f", a.Recall),
			fmt.Sprintf("%.3f", a.F1),
			fmt.Sprint(a.ExactMatch))
	}
	fmt.Fprintln(w, t.String())
}

func printAggregate(w io.Writer, agg *evaluator.Aggregate) {
	printTitle(w, fmt.Sprintf("📊 %s · %s", agg.DatasetName, agg.Model))
	fmt.Fprintf(w, "  Questions:         %d (%d generated, %d executed, %d failed)\n",
		agg.TotalQuestions, agg.SuccessfulGenerations, agg.SuccessfulExecutions, len(agg.FailedQuestions))
	fmt.Fprintf(w, "  F1 score:          %.3f\n", agg.AvgF1Score)
	fmt.Fprintf(w, "  Exact match:       %.3f\n", agg.AvgExactMatch)
	fmt.Fprintf(w, "  Execution success: %.3f\n", agg.ExecutionSuccessRate)
	fmt.Fprintf(w, "  Result accuracy:   %.3f\n", agg.AvgResultAccuracy)
	fmt.Fprintf(w, "  Total time:        %.2fs\n", agg.TotalEvaluationTime)
	if len(agg.ErrorTypes) > 0 {
		keys := make([]string, 0, len(agg.ErrorTypes))
		for k := range agg.ErrorTypes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  ⚠ %s: %d", k, agg.ErrorTypes[k])))
		}
	}
}
