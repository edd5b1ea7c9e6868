// Package membudget bounds the bytes held in memory by concurrent workers.
// Workers reserve before allocating a payload and release once it has been
// written out.
package membudget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DefaultRAM is assumed when system memory cannot be detected.
const DefaultRAM int64 = 4 << 30

// Budget is a blocking byte semaphore. It is safe for concurrent use.
type Budget struct {
	total int64

	mu    sync.Mutex
	cond  *sync.Cond
	inUse int64
}

// New returns a budget of total bytes.
func New(total int64) *Budget {
	b := &Budget{total: max(total, 1)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// FromSystemRAM returns a budget of fraction of the detected system memory,
// or of DefaultRAM when detection fails.
func FromSystemRAM(fraction float64) *Budget {
	ram, ok := systemRAM()
	if !ok || ram <= 0 {
		ram = DefaultRAM
	}
	return New(int64(float64(ram) * fraction))
}

// Total returns the budget size.
func (b *Budget) Total() int64 {
	return b.total
}

// InUse returns the bytes currently reserved.
func (b *Budget) InUse() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// Reserve blocks until n bytes are available or ctx is done. A request
// larger than the whole budget is clamped to it, so it waits for the budget
// to drain and then runs alone. It returns the amount reserved, which the
// caller passes to Release.
func (b *Budget) Reserve(ctx context.Context, n int64) (int64, error) {
	n = min(max(n, 0), b.total)

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.inUse+n > b.total {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.inUse += n
	return n, nil
}

// Release returns n reserved bytes.
func (b *Budget) Release(n int64) {
	b.mu.Lock()
	b.inUse = max(b.inUse-n, 0)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// ParseSize parses a size such as "512MiB", "2GB" or "1048576".
// Suffixes: B, K/KiB, KB, M/MiB, MB, G/GiB, GB, T/TiB, TB.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if end < 0 {
		end = len(s)
	}
	num, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	var mult float64
	switch strings.TrimSpace(s[end:]) {
	case "", "B":
		mult = 1
	case "K", "KiB":
		mult = 1 << 10
	case "KB":
		mult = 1e3
	case "M", "MiB":
		mult = 1 << 20
	case "MB":
		mult = 1e6
	case "G", "GiB":
		mult = 1 << 30
	case "GB":
		mult = 1e9
	case "T", "TiB":
		mult = 1 << 40
	case "TB":
		mult = 1e12
	default:
		return 0, fmt.Errorf("unknown size suffix in %q", s)
	}
	return int64(num * mult), nil
}
