// Package catalog indexes the chunk tables of many WAD archives into a
// SQLite database so a chunk hash can be located without opening every
// archive.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eunmann/wadkit/pkg/logging"
	"github.com/eunmann/wadkit/pkg/wad"
)

// Config holds configuration for the catalog database.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
	// Synchronous sets the SQLite synchronous pragma: OFF, NORMAL or FULL.
	Synchronous string
	// Workers is the number of archives fingerprinted and parsed at once.
	Workers int
}

// DefaultConfig returns a configuration for dbPath.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:      dbPath,
		Synchronous: "NORMAL",
		Workers:     runtime.NumCPU(),
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("DBPath is required")
	}
	switch c.Synchronous {
	case "", "OFF", "NORMAL", "FULL":
	default:
		return fmt.Errorf("invalid Synchronous value %q: must be OFF, NORMAL, or FULL", c.Synchronous)
	}
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Catalog is an open chunk catalog. It is safe for concurrent use.
type Catalog struct {
	db  *sql.DB
	cfg Config

	// writeMu serializes write transactions from index workers.
	writeMu sync.Mutex
}

// Location is one archive holding a chunk.
type Location struct {
	Archive          string
	Kind             wad.Kind
	CompressedSize   int64
	UncompressedSize int64
}

// ArchiveInfo is one indexed archive.
type ArchiveInfo struct {
	Path        string
	Size        int64
	Version     string
	Chunks      int
	Fingerprint Fingerprint
}

// Open creates or opens the catalog database.
func Open(cfg Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: writes are serialized anyway and SQLite would
	// otherwise return SQLITE_BUSY to concurrent writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA synchronous=%s", cfg.Synchronous),
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger := logging.WithPhase("catalog_open")
	logger.Debug().
		Str("db_path", cfg.DBPath).
		Str("synchronous", cfg.Synchronous).
		Msg("opened chunk catalog")

	return &Catalog{db: db, cfg: cfg}, nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archives (
			id INTEGER PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			fingerprint BLOB NOT NULL,
			version TEXT NOT NULL,
			chunk_count INTEGER NOT NULL,
			indexed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			archive_id INTEGER NOT NULL,
			hash INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			compressed_size INTEGER NOT NULL,
			uncompressed_size INTEGER NOT NULL,
			PRIMARY KEY (archive_id, hash)
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_by_hash ON chunks(hash)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Find returns every indexed archive containing hash, ordered by path.
func (c *Catalog) Find(hash uint64) ([]Location, error) {
	rows, err := c.db.Query(`
		SELECT a.path, c.kind, c.compressed_size, c.uncompressed_size
		FROM chunks c JOIN archives a ON a.id = c.archive_id
		WHERE c.hash = ?
		ORDER BY a.path`, int64(hash))
	if err != nil {
		return nil, fmt.Errorf("query chunk %016x: %w", hash, err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var loc Location
		var kind int
		if err := rows.Scan(&loc.Archive, &kind, &loc.CompressedSize, &loc.UncompressedSize); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		loc.Kind = wad.Kind(kind)
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return out, nil
}

// Archives lists the indexed archives ordered by path.
func (c *Catalog) Archives() ([]ArchiveInfo, error) {
	rows, err := c.db.Query(`SELECT path, size, fingerprint, version, chunk_count FROM archives ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query archives: %w", err)
	}
	defer rows.Close()

	var out []ArchiveInfo
	for rows.Next() {
		var info ArchiveInfo
		var fp []byte
		if err := rows.Scan(&info.Path, &info.Size, &fp, &info.Version, &info.Chunks); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		copy(info.Fingerprint[:], fp)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archives: %w", err)
	}
	return out, nil
}

// Remove drops an archive and its chunks. Removing an unknown path is not
// an error.
func (c *Catalog) Remove(path string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := deleteArchive(tx, path); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func deleteArchive(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM chunks WHERE archive_id IN (SELECT id FROM archives WHERE path = ?)`, path); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM archives WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete archive %s: %w", path, err)
	}
	return nil
}
