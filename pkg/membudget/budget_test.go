package membudget

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReserveRelease(t *testing.T) {
	b := New(100)
	ctx := context.Background()

	n, err := b.Reserve(ctx, 60)
	if err != nil || n != 60 {
		t.Fatalf("Reserve(60) = %d, %v", n, err)
	}
	if b.InUse() != 60 {
		t.Errorf("InUse = %d, want 60", b.InUse())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := b.Reserve(ctx, 50); err != nil {
			t.Errorf("blocked Reserve: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatal("Reserve exceeded the budget")
	case <-time.After(50 * time.Millisecond):
	}

	b.Release(60)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Reserve not woken by Release")
	}
	if b.InUse() != 50 {
		t.Errorf("InUse = %d, want 50", b.InUse())
	}
}

func TestReserveClampsOversized(t *testing.T) {
	b := New(10)
	n, err := b.Reserve(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if n != 10 {
		t.Errorf("reserved %d, want clamp to 10", n)
	}
	b.Release(n)
	if b.InUse() != 0 {
		t.Errorf("InUse = %d after release", b.InUse())
	}
}

func TestReserveCanceled(t *testing.T) {
	b := New(10)
	if _, err := b.Reserve(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := b.Reserve(ctx, 5)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Reserve = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("canceled Reserve did not return")
	}
	if b.InUse() != 10 {
		t.Errorf("InUse = %d, want 10", b.InUse())
	}
}

func TestFromSystemRAM(t *testing.T) {
	b := FromSystemRAM(0.25)
	if b.Total() <= 0 {
		t.Errorf("Total = %d", b.Total())
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"100B", 100, false},
		{"1KB", 1000, false},
		{"1KiB", 1024, false},
		{"1K", 1024, false},
		{"512MiB", 512 << 20, false},
		{"1.5GiB", 3 << 29, false},
		{"2GB", 2e9, false},
		{"1TiB", 1 << 40, false},
		{" 4G ", 4 << 30, false},
		{"", 0, true},
		{"GiB", 0, true},
		{"12XB", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
