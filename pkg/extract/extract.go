// Package extract writes the chunks of a WAD archive to a directory tree.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/wadkit/internal/logctx"
	"github.com/eunmann/wadkit/pkg/fileutil"
	"github.com/eunmann/wadkit/pkg/hashtable"
	"github.com/eunmann/wadkit/pkg/logging"
	"github.com/eunmann/wadkit/pkg/membudget"
	"github.com/eunmann/wadkit/pkg/memdiag"
	"github.com/eunmann/wadkit/pkg/wad"
)

// UnknownExt is appended to files named by hash.
const UnknownExt = ".bin"

// Options configures an extraction.
type Options struct {
	// OutDir receives the extracted tree. Created if missing.
	OutDir string
	// Workers is the number of chunks decompressed at once.
	Workers int
	// Raw writes on-disk bytes without decompressing.
	Raw bool
	// Overwrite replaces existing non-empty files instead of skipping them.
	Overwrite bool
	// ProgressInterval throttles progress lines; zero disables them.
	ProgressInterval time.Duration
	// MemoryBudget caps the payload bytes held by all workers at once.
	// Zero uses a quarter of system memory.
	MemoryBudget int64
	// Memory, when set, reports the budget alongside heap statistics.
	Memory *memdiag.Tracker
}

// DefaultOptions returns options writing to outDir with one worker per CPU.
func DefaultOptions(outDir string) Options {
	return Options{
		OutDir:           outDir,
		Workers:          runtime.NumCPU(),
		ProgressInterval: 5 * time.Second,
	}
}

// Validate checks option values.
func (o *Options) Validate() error {
	if o.OutDir == "" {
		return errors.New("OutDir is required")
	}
	if o.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, got %d", o.Workers)
	}
	if o.ProgressInterval < 0 {
		return fmt.Errorf("ProgressInterval must be non-negative, got %s", o.ProgressInterval)
	}
	if o.MemoryBudget < 0 {
		return fmt.Errorf("MemoryBudget must be non-negative, got %d", o.MemoryBudget)
	}
	return nil
}

// Stats summarizes an extraction.
type Stats struct {
	Files   int
	Skipped int
	Bytes   int64
	Unnamed int
}

type job struct {
	chunk wad.Chunk
	path  string
}

// Archive extracts every chunk of archive into opts.OutDir. Files are named
// through names (which may be nil); chunks without a known name are written
// as their hex hash plus UnknownExt. Names that would escape OutDir fail the
// extraction before anything is written.
func Archive(ctx context.Context, archive *wad.Archive, names *hashtable.Table, opts Options) (Stats, error) {
	if err := opts.Validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid options: %w", err)
	}

	// Tables are not safe for concurrent lookups, so names are resolved
	// before the workers start.
	chunks := archive.Chunks()
	jobs := make([]job, 0, len(chunks))
	unnamed := 0
	for _, c := range chunks {
		name, ok := "", false
		if names != nil {
			name, ok = names.TryGetName(c.Hash)
		}
		if !ok || name == "" {
			name = fmt.Sprintf("%016x%s", c.Hash, UnknownExt)
			unnamed++
		}
		path, err := fileutil.SafeJoin(opts.OutDir, name)
		if err != nil {
			return Stats{}, fmt.Errorf("chunk %016x: %w", c.Hash, err)
		}
		jobs = append(jobs, job{chunk: c, path: path})
	}

	log := logctx.FromContext(ctx).With().Str("phase", "extract").Logger()
	progress := logging.NewProgressTracker("extract", int64(len(jobs)), opts.ProgressInterval, log)

	budget := membudget.FromSystemRAM(0.25)
	if opts.MemoryBudget > 0 {
		budget = membudget.New(opts.MemoryBudget)
	}
	opts.Memory.Watch(budget)

	var files, skipped atomic.Int64
	var written atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !opts.Overwrite && fileutil.IsNonEmpty(j.path) {
				skipped.Add(1)
				progress.RecordSkip()
				return nil
			}

			// Raw and decoded buffers are both live while decoding.
			need := int64(j.chunk.CompressedSize)
			if !opts.Raw {
				need += int64(j.chunk.UncompressedSize)
			}
			reserved, err := budget.Reserve(ctx, need)
			if err != nil {
				return err
			}
			defer budget.Release(reserved)

			data, err := archive.ReadData(j.chunk, !opts.Raw)
			if err != nil {
				return err
			}
			if err := writeChunk(j.path, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("write %s: %w", j.path, err)
			}

			files.Add(1)
			written.Add(int64(len(data)))
			progress.RecordCompletion(int64(len(data)))
			return nil
		})
	}

	err := g.Wait()
	stats := Stats{
		Files:   int(files.Load()),
		Skipped: int(skipped.Load()),
		Bytes:   written.Load(),
		Unnamed: unnamed,
	}
	if err != nil {
		return stats, fmt.Errorf("extract: %w", err)
	}
	progress.Done("extraction complete")
	opts.Memory.LogNow("extract_done")
	return stats, nil
}

// writeChunk writes r to path through a temporary file, so an interrupted
// write never leaves a partial file that a later run would skip.
func writeChunk(path string, r io.Reader) error {
	return fileutil.WriteAtomic(path, func(f *os.File) error {
		if err := f.Chmod(0o644); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
		_, err := io.Copy(f, r)
		return err
	})
}

// File opens the archive at path and extracts it with Archive.
func File(ctx context.Context, path string, names *hashtable.Table, opts Options) (Stats, error) {
	archive, err := wad.OpenMapped(path)
	if err != nil {
		return Stats{}, err
	}
	defer archive.Close()

	return Archive(logctx.WithArchive(ctx, path), archive, names, opts)
}
