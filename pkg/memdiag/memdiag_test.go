package memdiag

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/wadkit/pkg/membudget"
)

func TestDisabledTrackerIsSilent(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(Config{}, zerolog.New(&buf))
	tr.Start()
	tr.LogNow("manual")
	tr.Stop()
	if buf.Len() != 0 {
		t.Errorf("disabled tracker logged: %q", buf.String())
	}

	var nilTracker *Tracker
	nilTracker.Watch(membudget.New(1))
	nilTracker.LogNow("manual")
	if nilTracker.PeakHeap() != 0 {
		t.Error("nil tracker reported a peak")
	}
}

func TestTrackerLogsBudget(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(Config{Enabled: true, LogInterval: time.Hour}, zerolog.New(&buf))
	tr.Watch(membudget.New(2048))

	tr.Start()
	tr.Start()
	tr.Stop()
	tr.Stop()

	out := buf.String()
	if !strings.Contains(out, `"reason":"shutdown"`) {
		t.Errorf("missing shutdown line: %q", out)
	}
	if !strings.Contains(out, `"budget_total":"2.00 KiB"`) {
		t.Errorf("missing budget fields: %q", out)
	}
	if strings.Count(out, "shutdown") != 1 {
		t.Errorf("expected one shutdown line: %q", out)
	}
	if tr.PeakHeap() == 0 {
		t.Error("peak heap not recorded")
	}
}
