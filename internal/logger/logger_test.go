package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))

	file := filepath.Join(t.TempDir(), "app.log")
	l, err = New(Config{Level: "WARN", Format: "json", File: file})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(0))
	l.Warn("written")
	_ = l.Sync()
	assert.FileExists(t, file)

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTo(&buf, 3)
	clock := time.Unix(0, 0)
	p.now = func() time.Time { return clock }
	p.startTime = clock

	p.SetPhase("Evaluating demo")
	p.StartTask("q1")
	clock = clock.Add(2 * time.Second)
	p.CompleteTask("q1")
	p.StartTask("q2")
	p.FailTask("q2", errors.New("no such table: x"))
	p.CompleteTask("q2") // already finished, ignored

	completed, failed := p.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)

	p.PrintSummary()
	out := buf.String()
	assert.Contains(t, out, "📍 Evaluating demo")
	assert.Contains(t, out, "[q1] ✓ Completed (2.00s)")
	assert.Contains(t, out, "Progress: 1/3 (33.3%)")
	assert.Contains(t, out, "[q2] ✗ Failed: no such table: x")
	assert.Contains(t, out, "  - q2: no such table: x")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "N/A", FormatDuration(0))
	assert.Equal(t, "4.5s", FormatDuration(4500*time.Millisecond))
	assert.Equal(t, "3m12s", FormatDuration(3*time.Minute+12*time.Second))
	assert.Equal(t, "1h5m", FormatDuration(time.Hour+5*time.Minute))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "postgres://[REDACTED]@db:5432/shop",
		SanitizeConnectionString("postgres://bob:secret@db:5432/shop"))
	assert.Equal(t, "host=db password=[REDACTED] dbname=x",
		SanitizeConnectionString("host=db password=hunter2 dbname=x"))
	assert.Equal(t, "", SanitizeError(nil))
	assert.NotContains(t, SanitizeError(errors.New("auth failed for sk-abcdefghijklmnopqrstuv")), "sk-abc")

	long := SanitizeQuery("SELECT   *\nFROM t WHERE " + string(bytes.Repeat([]byte("x"), 400)))
	assert.Len(t, long, MaxQueryLogLength+3)
	assert.Equal(t, "SELECT * FROM t", SanitizeQuery("SELECT *\n  FROM t"))
}
