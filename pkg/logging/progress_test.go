package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProgressTrackerCounts(t *testing.T) {
	pt := NewProgressTracker("test", 10, 0, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pt.RecordCompletion(100)
		}()
	}
	wg.Wait()
	pt.RecordSkip()
	pt.RecordSkip()

	completed, skipped, total := pt.Progress()
	if completed != 6 || skipped != 2 || total != 10 {
		t.Errorf("Progress = (%d, %d, %d), want (6, 2, 10)", completed, skipped, total)
	}
	if pt.Bytes() != 600 {
		t.Errorf("Bytes = %d, want 600", pt.Bytes())
	}
	if pct := pt.ProgressPct(); pct != 80 {
		t.Errorf("ProgressPct = %v, want 80", pct)
	}
}

func TestProgressTrackerEmpty(t *testing.T) {
	pt := NewProgressTracker("empty", 0, 0, zerolog.Nop())
	if pt.ProgressPct() != 100 {
		t.Errorf("ProgressPct = %v, want 100", pt.ProgressPct())
	}
	if pt.ETA() != 0 {
		t.Errorf("ETA = %v, want 0", pt.ETA())
	}
}

func TestProgressTrackerLogs(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker("extract", 2, time.Nanosecond, zerolog.New(&buf))

	time.Sleep(time.Millisecond)
	pt.RecordCompletion(10)
	pt.Done("extraction finished")

	out := buf.String()
	if !strings.Contains(out, `"event":"progress"`) {
		t.Errorf("missing progress line: %s", out)
	}
	if !strings.Contains(out, `"event":"phase_completed"`) || !strings.Contains(out, `"bytes":10`) {
		t.Errorf("missing summary line: %s", out)
	}
}
