package humanfmt

import (
	"testing"
	"time"
)

func TestBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{16 * MiB, "16.00 MiB"},
		{1610612736, "1.50 GiB"},
		{1099511627776, "1.00 TiB"},
		{-100, "-100 B"},
	}

	for _, tt := range tests {
		if got := Bytes(tt.input); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, "0ns"},
		{500 * time.Microsecond, "500.0µs"},
		{1500 * time.Millisecond, "1.50s"},
		{60 * time.Second, "1m"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h"},
		{8100 * time.Second, "2h15m"},
	}

	for _, tt := range tests {
		if got := Duration(tt.input); got != tt.want {
			t.Errorf("Duration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestThroughput(t *testing.T) {
	if got := Throughput(2*MiB, time.Second); got != "2.00 MiB/s" {
		t.Errorf("Throughput = %q, want %q", got, "2.00 MiB/s")
	}
	if got := Throughput(10, 0); got != "∞" {
		t.Errorf("Throughput(zero duration) = %q", got)
	}
	if got := Throughput(500, time.Second); got != "500 B/s" {
		t.Errorf("Throughput = %q, want %q", got, "500 B/s")
	}
}

func TestRatioAndHash(t *testing.T) {
	if got := Ratio(375, 1000); got != "37.5%" {
		t.Errorf("Ratio = %q, want 37.5%%", got)
	}
	if got := Ratio(1, 0); got != "-" {
		t.Errorf("Ratio(empty) = %q, want -", got)
	}
	if got := Hash(0xabc); got != "0000000000000abc" {
		t.Errorf("Hash = %q", got)
	}
}
