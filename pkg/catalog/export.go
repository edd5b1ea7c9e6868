package catalog

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/wadkit/pkg/hashtable"
	"github.com/eunmann/wadkit/pkg/wad"
)

// ExportRow is one chunk location in a Parquet export.
type ExportRow struct {
	Hash             uint64 `parquet:"hash"`
	Name             string `parquet:"name,optional"`
	Archive          string `parquet:"archive,dict"`
	Kind             string `parquet:"kind,dict"`
	CompressedSize   int64  `parquet:"compressed_size"`
	UncompressedSize int64  `parquet:"uncompressed_size"`
}

const exportBatchSize = 4096

// ExportParquet writes every indexed chunk to w as Parquet, ordered by
// archive path and hash. Names are resolved through names when it is not
// nil; unknown hashes get an empty name. It returns the number of rows.
func (c *Catalog) ExportParquet(w io.Writer, names *hashtable.Table) (int, error) {
	rows, err := c.db.Query(`
		SELECT c.hash, a.path, c.kind, c.compressed_size, c.uncompressed_size
		FROM chunks c JOIN archives a ON a.id = c.archive_id
		ORDER BY a.path, c.hash`)
	if err != nil {
		return 0, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	pw := parquet.NewGenericWriter[ExportRow](w)
	batch := make([]ExportRow, 0, exportBatchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.Write(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		var hash int64
		var kind int
		var row ExportRow
		if err := rows.Scan(&hash, &row.Archive, &kind, &row.CompressedSize, &row.UncompressedSize); err != nil {
			return total, fmt.Errorf("scan chunk: %w", err)
		}
		row.Hash = uint64(hash)
		row.Kind = wad.Kind(kind).String()
		if names != nil {
			row.Name, _ = names.TryGetName(row.Hash)
		}
		batch = append(batch, row)
		if len(batch) == exportBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, fmt.Errorf("iterate chunks: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	if err := pw.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w", err)
	}
	return total, nil
}
