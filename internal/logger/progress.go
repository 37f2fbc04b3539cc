package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Task status values
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const banner = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Progress prints per-question progress, ETA and a final summary for
// long evaluation runs. Safe for concurrent use.
type Progress struct {
	mu        sync.Mutex
	out       io.Writer
	total     int
	done      int
	startTime time.Time
	phase     string
	tasks     map[string]*TaskProgress
	now       func() time.Time
}

// TaskProgress tracks one task
type TaskProgress struct {
	Name      string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Error     string
}

// NewProgress creates a display for total tasks writing to stdout
func NewProgress(total int) *Progress {
	return NewProgressTo(os.Stdout, total)
}

// NewProgressTo is NewProgress with an explicit writer
func NewProgressTo(out io.Writer, total int) *Progress {
	if out == nil {
		out = io.Discard
	}
	return &Progress{
		out:       out,
		total:     total,
		startTime: time.Now(),
		tasks:     make(map[string]*TaskProgress),
		now:       time.Now,
	}
}

// SetTotal updates the task count once it is known
func (p *Progress) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// SetPhase prints a phase banner
func (p *Progress) SetPhase(phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
	fmt.Fprintf(p.out, "\n%s\n📍 %s\n%s\n\n", banner, phase, banner)
}

func (p *Progress) StartTask(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[name] = &TaskProgress{Name: name, Status: StatusRunning, StartTime: p.now()}
	fmt.Fprintf(p.out, "[%s] 🔄 Started\n", name)
}

func (p *Progress) CompleteTask(name string) {
	p.finish(name, nil)
}

func (p *Progress) FailTask(name string, err error) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	p.finish(name, err)
}

func (p *Progress) finish(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[name]
	if !ok {
		// finishing a task that never started still counts toward progress
		task = &TaskProgress{Name: name, Status: StatusRunning, StartTime: p.now()}
		p.tasks[name] = task
	}
	if task.Status != StatusRunning {
		return
	}
	task.EndTime = p.now()
	p.done++

	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		fmt.Fprintf(p.out, "[%s] ✗ Failed: %v\n", name, err)
	} else {
		task.Status = StatusCompleted
		fmt.Fprintf(p.out, "[%s] ✓ Completed (%.2fs)\n", name, task.EndTime.Sub(task.StartTime).Seconds())
	}
	p.printProgress()
}

// printProgress expects p.mu held
func (p *Progress) printProgress() {
	if p.total == 0 {
		return
	}
	elapsed := p.now().Sub(p.startTime)
	var eta time.Duration
	if p.done > 0 && p.done < p.total {
		eta = elapsed / time.Duration(p.done) * time.Duration(p.total-p.done)
	}
	fmt.Fprintf(p.out, "📊 Progress: %d/%d (%.1f%%) | Elapsed: %s | ETA: %s\n\n",
		p.done, p.total, float64(p.done)/float64(p.total)*100,
		FormatDuration(elapsed), FormatDuration(eta))
}

// Counts returns completed and failed task counts
func (p *Progress) Counts() (completed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		switch t.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return completed, failed
}

// PrintSummary prints totals and the failed tasks in name order
func (p *Progress) PrintSummary() {
	completed, failed := p.Counts()

	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.now().Sub(p.startTime)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n📊 Final Summary\n%s\n\n", banner, banner)
	fmt.Fprintf(&b, "Total Tasks: %d\n", p.total)
	fmt.Fprintf(&b, "✓ Completed: %d\n", completed)
	fmt.Fprintf(&b, "✗ Failed: %d\n", failed)
	fmt.Fprintf(&b, "⏱️  Total Time: %s\n", FormatDuration(total))
	if n := completed + failed; n > 0 {
		fmt.Fprintf(&b, "⚡ Avg Time/Task: %s\n", FormatDuration(total/time.Duration(n)))
	}

	if failed > 0 {
		names := make([]string, 0, failed)
		for name, t := range p.tasks {
			if t.Status == StatusFailed {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		b.WriteString("\n❌ Failed Tasks:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s: %s\n", name, p.tasks[name].Error)
		}
	}
	b.WriteString("\n")
	io.WriteString(p.out, b.String())
}

// FormatDuration renders d as 4.2s, 3m12s or 1h5m. Zero is "N/A".
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "N/A"
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
