package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/eunmann/wadkit/pkg/compress"
	"github.com/eunmann/wadkit/pkg/extract"
	"github.com/eunmann/wadkit/pkg/fileutil"
	"github.com/eunmann/wadkit/pkg/hashtable"
	"github.com/eunmann/wadkit/pkg/humanfmt"
	"github.com/eunmann/wadkit/pkg/logging"
	"github.com/eunmann/wadkit/pkg/memdiag"
	"github.com/eunmann/wadkit/pkg/wad"
)

func runList(out io.Writer, args []string) error {
	fs, g := newFlagSet("ls")
	names := fs.String("hashtable", "", "hashtable for chunk names (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wadkit ls <wad>")
	}
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	if *names == "" {
		*names = cfg.Hashtable
	}

	archive, err := wad.OpenMapped(fs.Arg(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	table, err := openNames(*names)
	if err != nil {
		return err
	}
	defer closeNames(table)

	var stored, original int64
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tKIND\tSTORED\tSIZE\tNAME")
	for _, c := range archive.Chunks() {
		name := ""
		if table != nil {
			name, _ = table.TryGetName(c.Hash)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			humanfmt.Hash(c.Hash), c.Kind,
			humanfmt.Bytes(int64(c.CompressedSize)), humanfmt.Bytes(int64(c.UncompressedSize)),
			name)
		stored += int64(c.CompressedSize)
		original += int64(c.UncompressedSize)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "version %s, %d chunks, %s stored, %s uncompressed (%s)\n",
		archive.Version(), archive.Len(),
		humanfmt.Bytes(stored), humanfmt.Bytes(original), humanfmt.Ratio(stored, original))
	return nil
}

func runExtract(out io.Writer, args []string) error {
	fs, g := newFlagSet("extract")
	outDir := fs.StringP("out", "o", "", "output directory")
	names := fs.String("hashtable", "", "hashtable for file names (default from config)")
	workers := fs.Int("workers", 0, "parallel workers (default from config)")
	raw := fs.Bool("raw", false, "write stored bytes without decompressing")
	overwrite := fs.Bool("overwrite", false, "replace existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return errors.New("--out is required")
	}
	if fs.NArg() == 0 {
		return errors.New("at least one wad file is required")
	}
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	if *names == "" {
		*names = cfg.Hashtable
	}

	opts := cfg.ExtractOptions(*outDir)
	if *workers > 0 {
		opts.Workers = *workers
	}
	opts.Raw = *raw
	opts.Overwrite = opts.Overwrite || *overwrite

	tracker := memdiag.NewTracker(memdiag.ConfigFromEnv(), logging.WithPhase("extract"))
	tracker.Start()
	defer tracker.Stop()
	opts.Memory = tracker

	table, err := openNames(*names)
	if err != nil {
		return err
	}
	defer closeNames(table)

	ctx := context.Background()
	for _, path := range fs.Args() {
		stats, err := extract.File(ctx, path, table, opts)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %d files (%s), %d skipped, %d unnamed\n",
			path, stats.Files, humanfmt.Bytes(stats.Bytes), stats.Skipped, stats.Unnamed)
	}
	return nil
}

func runPack(out io.Writer, args []string) error {
	flags, g := newFlagSet("pack")
	root := flags.String("root", "", "directory to pack")
	outPath := flags.StringP("out", "o", "", "archive to write")
	level := flags.String("level", "", "compression level: fastest, default or better (default from config)")
	subChunk := flags.Int("sub-chunk-size", -1, "split files above this size into zstd blocks, 0 disables (default from config)")
	namesOut := flags.String("names-out", "", "also write a hashtable of the packed paths")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return errors.New("--root is required")
	}
	if *outPath == "" {
		return errors.New("--out is required")
	}
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	if *level != "" {
		cfg.Pack.Level = *level
	}
	if *subChunk >= 0 {
		cfg.Pack.SubChunkSize = *subChunk
	}
	lvl, err := cfg.PackLevel()
	if err != nil {
		return err
	}

	enc, err := compress.NewEncoder(lvl)
	if err != nil {
		return err
	}
	defer enc.Close()

	b, err := wad.NewBuilder(3, enc)
	if err != nil {
		return err
	}
	names := hashtable.New()

	var original int64
	err = filepath.WalkDir(*root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(*root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		hash := wad.HashPath(rel)
		if n := cfg.Pack.SubChunkSize; n > 0 && len(data) > n {
			blockSize := max(n, (len(data)+wad.MaxSubChunks-1)/wad.MaxSubChunks)
			err = b.AddChunked(hash, data, blockSize)
		} else {
			err = b.Add(hash, data, wad.KindZstd)
		}
		if err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		names.Insert(hash, rel)
		original += int64(len(data))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", *root, err)
	}

	var written int64
	err = fileutil.WriteAtomic(*outPath, func(f *os.File) error {
		var err error
		written, err = b.WriteTo(f)
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", *outPath, err)
	}
	logging.L().Debug().Str("path", *outPath).Int("chunks", b.Len()).Msg("packed archive")

	if *namesOut != "" {
		if _, err := names.WriteFile(*namesOut); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s: %d files, %s from %s (%s)\n",
		*outPath, b.Len(), humanfmt.Bytes(written), humanfmt.Bytes(original), humanfmt.Ratio(written, original))
	return nil
}
