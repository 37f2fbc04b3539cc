// Package report renders evaluation aggregates as standalone HTML pages.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"

	"text2sql/internal/components"
	"text2sql/internal/evaluator"
	"text2sql/internal/metrics"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("report").
		Funcs(sprig.FuncMap()).
		Funcs(template.FuncMap{"percent": percent}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

const (
	bestTolerance  = 0.001
	generatedStamp = "2006-01-02 15:04:05"
)

// Generator writes HTML reports into one directory
type Generator struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewGenerator writes reports to dir, created on first use
func NewGenerator(dir string, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{dir: dir, now: time.Now, logger: logger.Named("report")}
}

// WriteEvaluation renders agg to evaluation_report_<dataset>_<ts>.html
func (g *Generator) WriteEvaluation(agg *evaluator.Aggregate) (string, error) {
	now := g.now()
	name := fmt.Sprintf("evaluation_report_%s_%s.html", evaluator.FileSafe(agg.DatasetName), now.Format(evaluator.TimestampLayout))
	path, err := g.write(name, func(w io.Writer) error { return RenderEvaluation(w, agg, now) })
	if err != nil {
		return "", err
	}
	g.logger.Info("HTML report generated", zap.String("path", path))
	return path, nil
}

// WriteComparison renders the per-model aggregates to
// model_comparison_report_<ts>.html
func (g *Generator) WriteComparison(byModel map[string]*evaluator.Aggregate) (string, error) {
	now := g.now()
	name := fmt.Sprintf("model_comparison_report_%s.html", now.Format(evaluator.TimestampLayout))
	path, err := g.write(name, func(w io.Writer) error { return RenderComparison(w, byModel, now) })
	if err != nil {
		return "", err
	}
	g.logger.Info("comparison report generated", zap.String("path", path))
	return path, nil
}

func (g *Generator) write(name string, render func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(g.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := render(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

type namedScore struct {
	Name  string
	Score metrics.Score
}

type namedCount struct {
	Name  string
	Count int
}

type evaluationPage struct {
	Agg              *evaluator.Aggregate
	Generated        string
	Components       []namedScore
	Errors           []namedCount
	QueriesPerSecond float64
}

// RenderEvaluation writes the single-run report for agg
func RenderEvaluation(w io.Writer, agg *evaluator.Aggregate, now time.Time) error {
	page := evaluationPage{Agg: agg, Generated: now.Format(generatedStamp)}

	// canonical clause order first, then anything unknown
	seen := map[string]bool{metrics.OverallKey: true}
	for _, ct := range components.ClauseTypes {
		if s, ok := agg.ComponentScores[string(ct)]; ok {
			page.Components = append(page.Components, namedScore{string(ct), s})
			seen[string(ct)] = true
		}
	}
	var extra []string
	for name := range agg.ComponentScores {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		page.Components = append(page.Components, namedScore{name, agg.ComponentScores[name]})
	}

	for name, n := range agg.ErrorTypes {
		page.Errors = append(page.Errors, namedCount{name, n})
	}
	sort.Slice(page.Errors, func(i, j int) bool { return page.Errors[i].Name < page.Errors[j].Name })

	if agg.TotalEvaluationTime > 0 {
		page.QueriesPerSecond = float64(agg.TotalQuestions) / agg.TotalEvaluationTime
	}
	return templates.ExecuteTemplate(w, "evaluation.html.tmpl", page)
}

type cell struct {
	Text string
	Best bool
}

type comparisonRow struct {
	Metric string
	Cells  []cell
}

type comparisonPage struct {
	Generated  string
	Models     []string
	Rows       []comparisonRow
	Aggregates map[string]*evaluator.Aggregate
}

type comparisonMetric struct {
	name      string
	value     func(*evaluator.Aggregate) float64
	highlight bool
	seconds   bool
}

var comparisonMetrics = []comparisonMetric{
	{name: "F1 Score", value: func(a *evaluator.Aggregate) float64 { return a.AvgF1Score }, highlight: true},
	{name: "Exact Match", value: func(a *evaluator.Aggregate) float64 { return a.AvgExactMatch }, highlight: true},
	{name: "Execution Success", value: func(a *evaluator.Aggregate) float64 { return a.ExecutionSuccessRate }, highlight: true},
	{name: "Precision", value: func(a *evaluator.Aggregate) float64 { return a.AvgPrecision }},
	{name: "Recall", value: func(a *evaluator.Aggregate) float64 { return a.AvgRecall }},
	{name: "Result Accuracy", value: func(a *evaluator.Aggregate) float64 { return a.AvgResultAccuracy }},
	{name: "Generation Time", value: func(a *evaluator.Aggregate) float64 { return a.AvgGenerationTime }, seconds: true},
	{name: "Execution Time", value: func(a *evaluator.Aggregate) float64 { return a.AvgExecutionTime }, seconds: true},
}

// RenderComparison writes a side-by-side table of byModel. The best value of
// F1, exact match and execution success is highlighted, ties included.
func RenderComparison(w io.Writer, byModel map[string]*evaluator.Aggregate, now time.Time) error {
	page := comparisonPage{Generated: now.Format(generatedStamp), Aggregates: byModel}
	for name := range byModel {
		page.Models = append(page.Models, name)
	}
	sort.Strings(page.Models)

	for _, m := range comparisonMetrics {
		best := math.Inf(-1)
		for _, name := range page.Models {
			best = math.Max(best, m.value(byModel[name]))
		}
		row := comparisonRow{Metric: m.name}
		for _, name := range page.Models {
			v := m.value(byModel[name])
			text := fmt.Sprintf("%.3f", v)
			if m.seconds {
				text += "s"
			}
			row.Cells = append(row.Cells, cell{
				Text: text,
				Best: m.highlight && math.Abs(v-best) < bestTolerance,
			})
		}
		page.Rows = append(page.Rows, row)
	}
	return templates.ExecuteTemplate(w, "comparison.html.tmpl", page)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f", math.Max(0, math.Min(1, v))*100)
}
