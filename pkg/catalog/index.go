package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/wadkit/internal/logctx"
	"github.com/eunmann/wadkit/pkg/logging"
	"github.com/eunmann/wadkit/pkg/wad"
)

// IndexStats summarizes an Index call.
type IndexStats struct {
	Indexed int
	Skipped int
	Chunks  int
}

// Index records the chunk tables of the archives at paths. Archives whose
// content fingerprint matches the stored one are skipped. Each archive is
// written in its own transaction, so a failure leaves earlier archives
// indexed.
func (c *Catalog) Index(ctx context.Context, paths []string) (IndexStats, error) {
	log := logctx.FromContext(ctx).With().Str("phase", "catalog_index").Logger()
	progress := logging.NewProgressTracker("catalog_index", int64(len(paths)), 5*time.Second, log)

	var indexed, skipped, chunks atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", path, err)
			}
			actx := logctx.WithArchive(ctx, abs)

			n, size, err := c.indexArchive(actx, abs)
			if err != nil {
				return fmt.Errorf("index %s: %w", path, err)
			}
			if n < 0 {
				skipped.Add(1)
				progress.RecordSkip()
				return nil
			}
			indexed.Add(1)
			chunks.Add(int64(n))
			progress.RecordCompletion(size)
			return nil
		})
	}

	err := g.Wait()
	stats := IndexStats{
		Indexed: int(indexed.Load()),
		Skipped: int(skipped.Load()),
		Chunks:  int(chunks.Load()),
	}
	if err != nil {
		return stats, err
	}
	progress.Done("catalog indexed")
	return stats, nil
}

// indexArchive returns the number of chunks written, or -1 when the archive
// was unchanged.
func (c *Catalog) indexArchive(ctx context.Context, path string) (int, int64, error) {
	log := logctx.FromContext(ctx)

	fp, size, err := FingerprintFile(path)
	if err != nil {
		return 0, 0, err
	}

	stored, err := c.storedFingerprint(path)
	if err != nil {
		return 0, 0, err
	}
	if stored != nil && bytes.Equal(stored, fp[:]) {
		log.Debug().Str("fingerprint", fp.String()).Msg("archive unchanged")
		return -1, size, nil
	}

	archive, err := wad.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer archive.Close()

	list := archive.Chunks()
	if err := c.writeArchive(path, size, fp, archive.Version().String(), list); err != nil {
		return 0, 0, err
	}

	log.Debug().Int("chunks", len(list)).Msg("archive indexed")
	return len(list), size, nil
}

func (c *Catalog) storedFingerprint(path string) ([]byte, error) {
	var fp []byte
	err := c.db.QueryRow(`SELECT fingerprint FROM archives WHERE path = ?`, path).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fingerprint: %w", err)
	}
	return fp, nil
}

func (c *Catalog) writeArchive(path string, size int64, fp Fingerprint, version string, list []wad.Chunk) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := insertArchive(tx, path, size, fp, version, list); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertArchive(tx *sql.Tx, path string, size int64, fp Fingerprint, version string, list []wad.Chunk) error {
	if err := deleteArchive(tx, path); err != nil {
		return err
	}

	res, err := tx.Exec(`
		INSERT INTO archives (path, size, fingerprint, version, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		path, size, fp[:], version, len(list), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("archive id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (archive_id, hash, kind, compressed_size, uncompressed_size)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range list {
		// SQLite integers are signed; hashes are stored bit-for-bit.
		if _, err := stmt.Exec(id, int64(ch.Hash), int(ch.Kind), ch.CompressedSize, ch.UncompressedSize); err != nil {
			return fmt.Errorf("insert chunk %016x: %w", ch.Hash, err)
		}
	}
	return nil
}
