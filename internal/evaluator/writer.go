package evaluator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the timestamp used in output file names
const TimestampLayout = "20060102_150405"

// ResultWriter streams results into an output directory:
//
//	results.json   a JSON array that is valid after every write
//	predict.sql    one "sql<TAB>db_id" line per question
//	inference.log  a compressed human-readable log
//
// A crash or interrupt loses at most the result being written.
type ResultWriter struct {
	dir      string
	jsonFile *os.File
	sqlFile  *os.File
	logFile  *os.File
	jsonTail int64
	count    int
}

// NewResultWriter creates dir and the three output files in it
func NewResultWriter(dir string) (*ResultWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &ResultWriter{dir: dir}
	var err error
	if w.jsonFile, err = os.Create(filepath.Join(dir, "results.json")); err != nil {
		return nil, err
	}
	if w.sqlFile, err = os.Create(filepath.Join(dir, "predict.sql")); err != nil {
		w.Close()
		return nil, err
	}
	if w.logFile, err = os.Create(filepath.Join(dir, "inference.log")); err != nil {
		w.Close()
		return nil, err
	}
	if _, err := w.jsonFile.WriteString("[\n"); err != nil {
		w.Close()
		return nil, err
	}
	// an empty run still leaves a valid array
	if w.jsonTail, err = w.jsonFile.Seek(0, io.SeekCurrent); err != nil {
		w.Close()
		return nil, err
	}
	if _, err := w.jsonFile.WriteString("]\n"); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Dir is the output directory
func (w *ResultWriter) Dir() string {
	return w.dir
}

// Count is the number of results written
func (w *ResultWriter) Count() int {
	return w.count
}

// Write appends r to all three files and syncs them
func (w *ResultWriter) Write(r Result) error {
	if err := w.writeJSON(r); err != nil {
		return fmt.Errorf("results.json: %w", err)
	}
	if _, err := fmt.Fprintf(w.sqlFile, "%s\t%s\n", singleLine(r.PredictedSQL), r.Database); err != nil {
		return fmt.Errorf("predict.sql: %w", err)
	}
	if err := w.sqlFile.Sync(); err != nil {
		return err
	}
	w.count++
	if err := w.writeLog(r); err != nil {
		return fmt.Errorf("inference.log: %w", err)
	}
	return nil
}

func (w *ResultWriter) writeJSON(r Result) error {
	data, err := json.MarshalIndent(r, "  ", "  ")
	if err != nil {
		return err
	}
	// overwrite the closing bracket of the previous write
	if _, err := w.jsonFile.Seek(w.jsonTail, io.SeekStart); err != nil {
		return err
	}
	sep := ""
	if w.count > 0 {
		sep = ",\n"
	}
	if _, err := w.jsonFile.WriteString(sep + "  " + string(data)); err != nil {
		return err
	}
	if w.jsonTail, err = w.jsonFile.Seek(0, io.SeekCurrent); err != nil {
		return err
	}
	if _, err := w.jsonFile.WriteString("\n]\n"); err != nil {
		return err
	}
	return w.jsonFile.Sync()
}

func (w *ResultWriter) writeLog(r Result) error {
	status := "✅"
	if !r.ExecutionMetrics.Success {
		status = "❌"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%04d] %s | Q: %s\n", w.count, r.QuestionID, r.Question)
	fmt.Fprintf(&b, "       F1: %.3f | Exact: %.0f | Rows: %d | Time: %.1fs | %s\n",
		r.SQLMetrics.F1Score, r.SQLMetrics.ExactMatch, r.ExecutionMetrics.ResultCount, r.TotalTime, status)
	fmt.Fprintf(&b, "       Gold: %s\n", r.GroundTruthSQL)
	fmt.Fprintf(&b, "       Pred: %s\n", r.PredictedSQL)
	if msg := firstNonEmpty(r.GenerationError, r.ExecutionMetrics.ErrorMessage); msg != "" {
		fmt.Fprintf(&b, "       Error: %s\n", msg)
	}
	b.WriteString("\n")
	if _, err := w.logFile.WriteString(b.String()); err != nil {
		return err
	}
	return w.logFile.Sync()
}

// Close syncs and closes every file. The JSON array is already closed.
func (w *ResultWriter) Close() error {
	var first error
	for _, f := range []*os.File{w.jsonFile, w.sqlFile, w.logFile} {
		if f == nil {
			continue
		}
		_ = f.Sync()
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RunDir returns <base>/<dataset>_<model>_<timestamp>
func RunDir(base, datasetName, model string, now time.Time) string {
	return filepath.Join(base, fmt.Sprintf("%s_%s_%s", FileSafe(datasetName), FileSafe(model), now.Format(TimestampLayout)))
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileSafe turns s into a file name fragment: every run of other characters
// becomes one underscore
func FileSafe(s string) string {
	return strings.Trim(unsafeFileChars.ReplaceAllString(s, "_"), "_")
}

// singleLine flattens sql for predict.sql; empty output becomes SELECT 1
func singleLine(sql string) string {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	sql = strings.Join(strings.Fields(sql), " ")
	if sql == "" {
		return "SELECT 1"
	}
	return sql
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
