// Package memdiag logs heap usage next to a membudget while long
// operations run.
//
// Enable with WADKIT_MEM_DEBUG=1. WADKIT_MEM_PPROF=1 also serves pprof on
// localhost:6060.
package memdiag

import (
	"net/http"
	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/wadkit/pkg/humanfmt"
	"github.com/eunmann/wadkit/pkg/membudget"
)

const pprofAddr = "localhost:6060"

// Config holds configuration for memory diagnostics.
type Config struct {
	Enabled      bool
	PprofEnabled bool
	LogInterval  time.Duration
}

// ConfigFromEnv reads WADKIT_MEM_DEBUG and WADKIT_MEM_PPROF.
func ConfigFromEnv() Config {
	return Config{
		Enabled:      os.Getenv("WADKIT_MEM_DEBUG") == "1",
		PprofEnabled: os.Getenv("WADKIT_MEM_PPROF") == "1",
		LogInterval:  5 * time.Second,
	}
}

// Tracker periodically logs heap statistics. A disabled Tracker, and a nil
// *Tracker, do nothing.
type Tracker struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	budget   *membudget.Budget
	peakHeap uint64
	stop     chan struct{}
	done     chan struct{}
}

// NewTracker returns a tracker logging to log.
func NewTracker(cfg Config, log zerolog.Logger) *Tracker {
	return &Tracker{cfg: cfg, log: log}
}

// Enabled reports whether the tracker logs anything.
func (t *Tracker) Enabled() bool {
	return t != nil && t.cfg.Enabled
}

// Watch makes subsequent lines report b's usage.
func (t *Tracker) Watch(b *membudget.Budget) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	t.budget = b
	t.mu.Unlock()
}

// Start begins periodic logging. Calling Start twice is a no-op.
func (t *Tracker) Start() {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	if t.cfg.PprofEnabled {
		go func() {
			t.log.Info().Str("addr", pprofAddr).Msg("starting pprof server")
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}
	go t.loop(t.stop, t.done, max(t.cfg.LogInterval, 100*time.Millisecond))
}

// Stop ends periodic logging and logs a final line.
func (t *Tracker) Stop() {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop = nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// PeakHeap returns the largest heap allocation logged so far.
func (t *Tracker) PeakHeap() uint64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

// LogNow logs the current statistics.
func (t *Tracker) LogNow(reason string) {
	if !t.Enabled() {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	t.mu.Lock()
	t.peakHeap = max(t.peakHeap, m.HeapAlloc)
	peak := t.peakHeap
	budget := t.budget
	t.mu.Unlock()

	ev := t.log.Debug().
		Str("reason", reason).
		Str("heap_alloc", humanfmt.Bytes(int64(m.HeapAlloc))).
		Str("heap_sys", humanfmt.Bytes(int64(m.HeapSys))).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Uint32("num_gc", m.NumGC)
	if budget != nil {
		ev = ev.
			Str("budget_in_use", humanfmt.Bytes(budget.InUse())).
			Str("budget_total", humanfmt.Bytes(budget.Total()))
	}
	ev.Msg("memory stats")
}

func (t *Tracker) loop(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
