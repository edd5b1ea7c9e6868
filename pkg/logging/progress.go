package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/wadkit/pkg/humanfmt"
)

// ProgressTracker counts completed items and bytes for a bulk operation and
// logs periodic progress lines. It is safe for concurrent use.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	skipped   atomic.Int64
	bytes     atomic.Int64
	startTime time.Time
	log       zerolog.Logger
	phase     string

	mu         sync.Mutex
	lastReport time.Time
	interval   time.Duration
}

// NewProgressTracker creates a tracker for total items. A progress line is
// logged at most once per interval; zero disables periodic lines.
func NewProgressTracker(phase string, total int64, interval time.Duration, log zerolog.Logger) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		total:      total,
		startTime:  now,
		log:        log,
		phase:      phase,
		lastReport: now,
		interval:   interval,
	}
}

// RecordCompletion records one finished item of n bytes.
func (pt *ProgressTracker) RecordCompletion(n int64) {
	pt.completed.Add(1)
	pt.bytes.Add(n)
	pt.maybeReport()
}

// RecordSkip records an item that needed no work.
func (pt *ProgressTracker) RecordSkip() {
	pt.skipped.Add(1)
	pt.maybeReport()
}

// Progress returns current progress stats.
func (pt *ProgressTracker) Progress() (completed, skipped, total int64) {
	return pt.completed.Load(), pt.skipped.Load(), pt.total
}

// Bytes returns the number of bytes recorded so far.
func (pt *ProgressTracker) Bytes() int64 {
	return pt.bytes.Load()
}

// ProgressPct returns the progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	if pt.total == 0 {
		return 100.0
	}
	done := pt.completed.Load() + pt.skipped.Load()
	return float64(done) * 100.0 / float64(pt.total)
}

// ETA returns the estimated time remaining based on the average item time.
func (pt *ProgressTracker) ETA() time.Duration {
	done := pt.completed.Load() + pt.skipped.Load()
	if done == 0 {
		return 0
	}
	remaining := pt.total - done
	if remaining <= 0 {
		return 0
	}
	return time.Since(pt.startTime) / time.Duration(done) * time.Duration(remaining)
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

func (pt *ProgressTracker) maybeReport() {
	if pt.interval <= 0 {
		return
	}
	pt.mu.Lock()
	if time.Since(pt.lastReport) < pt.interval {
		pt.mu.Unlock()
		return
	}
	pt.lastReport = time.Now()
	pt.mu.Unlock()

	completed, skipped, total := pt.Progress()
	e := pt.log.Info().
		Str("event", "progress").
		Str("phase", pt.phase).
		Int64("completed", completed).
		Int64("skipped", skipped).
		Int64("total", total).
		Float64("progress_pct", pt.ProgressPct())
	if eta := pt.ETA(); eta > 0 {
		e = e.Int64("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			e = e.Str("eta_h", humanfmt.Duration(eta))
		}
	}
	e.Msg("progress")
}

// Done logs the final summary line.
func (pt *ProgressTracker) Done(msg string) {
	elapsed := pt.Elapsed()
	completed, skipped, total := pt.Progress()
	bytes := pt.bytes.Load()

	e := pt.log.Info().
		Str("event", "phase_completed").
		Str("phase", pt.phase).
		Int64("completed", completed).
		Int64("skipped", skipped).
		Int64("total", total).
		Int64("bytes", bytes).
		Int64("duration_ms", elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("bytes_h", humanfmt.Bytes(bytes)).
			Str("duration_h", humanfmt.Duration(elapsed)).
			Str("throughput_h", humanfmt.Throughput(bytes, elapsed))
	}
	e.Msg(msg)
}
