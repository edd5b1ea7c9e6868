package catalog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/wadkit/pkg/compress"
	"github.com/eunmann/wadkit/pkg/hashtable"
	"github.com/eunmann/wadkit/pkg/wad"
)

type testChunk struct {
	hash uint64
	data []byte
	kind wad.Kind
}

func writeArchive(t *testing.T, path string, chunks []testChunk) {
	t.Helper()
	enc, err := compress.NewEncoder(compress.LevelFastest)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()

	b, err := wad.NewBuilder(3, enc)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	for _, c := range chunks {
		if err := b.Add(c.hash, c.data, c.kind); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "catalog.db"))
	cfg.Workers = 2
	c, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig("x.db"), false},
		{"no path", Config{Synchronous: "NORMAL", Workers: 1}, true},
		{"bad synchronous", Config{DBPath: "x.db", Synchronous: "SOMETIMES", Workers: 1}, true},
		{"no workers", Config{DBPath: "x.db", Workers: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIndexAndFind(t *testing.T) {
	dir := t.TempDir()
	mapWad := filepath.Join(dir, "Map11.wad.client")
	champWad := filepath.Join(dir, "Ahri.wad.client")
	shared := uint64(0xF00D_0000_0000_0001)

	writeArchive(t, mapWad, []testChunk{
		{hash: 1, data: []byte("map geometry"), kind: wad.KindZstd},
		{hash: shared, data: []byte("shared texture"), kind: wad.KindNone},
	})
	writeArchive(t, champWad, []testChunk{
		{hash: 2, data: bytes.Repeat([]byte("skin"), 100), kind: wad.KindGzip},
		{hash: shared, data: []byte("shared texture"), kind: wad.KindZstd},
	})

	c := openCatalog(t)
	stats, err := c.Index(context.Background(), []string{mapWad, champWad})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if stats.Indexed != 2 || stats.Skipped != 0 || stats.Chunks != 4 {
		t.Errorf("stats = %+v", stats)
	}

	locs, err := c.Find(shared)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("Find returned %d locations, want 2", len(locs))
	}
	if filepath.Base(locs[0].Archive) != "Ahri.wad.client" || locs[0].Kind != wad.KindZstd {
		t.Errorf("locs[0] = %+v", locs[0])
	}
	if filepath.Base(locs[1].Archive) != "Map11.wad.client" || locs[1].Kind != wad.KindNone {
		t.Errorf("locs[1] = %+v", locs[1])
	}
	if locs[1].UncompressedSize != int64(len("shared texture")) {
		t.Errorf("UncompressedSize = %d", locs[1].UncompressedSize)
	}

	missing, err := c.Find(0xABCDEF)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Find(missing) = %v", missing)
	}
}

func TestIndexSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Common.wad.client")
	writeArchive(t, path, []testChunk{{hash: 10, data: []byte("ten"), kind: wad.KindNone}})

	c := openCatalog(t)
	ctx := context.Background()
	if _, err := c.Index(ctx, []string{path}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	stats, err := c.Index(ctx, []string{path})
	if err != nil {
		t.Fatalf("re-Index: %v", err)
	}
	if stats.Skipped != 1 || stats.Indexed != 0 {
		t.Errorf("unchanged archive: stats = %+v", stats)
	}

	writeArchive(t, path, []testChunk{{hash: 20, data: []byte("twenty"), kind: wad.KindNone}})
	stats, err = c.Index(ctx, []string{path})
	if err != nil {
		t.Fatalf("Index after change: %v", err)
	}
	if stats.Indexed != 1 {
		t.Errorf("changed archive: stats = %+v", stats)
	}

	if locs, _ := c.Find(10); len(locs) != 0 {
		t.Error("stale chunk survived re-index")
	}
	if locs, _ := c.Find(20); len(locs) != 1 {
		t.Error("new chunk not indexed")
	}

	archives, err := c.Archives()
	if err != nil {
		t.Fatalf("Archives: %v", err)
	}
	if len(archives) != 1 || archives[0].Chunks != 1 || archives[0].Version != "3.1" {
		t.Errorf("Archives = %+v", archives)
	}
	fp, _, err := FingerprintFile(path)
	if err != nil {
		t.Fatalf("FingerprintFile: %v", err)
	}
	if archives[0].Fingerprint != fp {
		t.Error("stored fingerprint does not match file")
	}

	if err := c.Remove(archives[0].Path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if locs, _ := c.Find(20); len(locs) != 0 {
		t.Error("chunks survived Remove")
	}
}

func TestIndexBadArchive(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wad.client")
	if err := os.WriteFile(bad, []byte("not a wad"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := openCatalog(t)
	if _, err := c.Index(context.Background(), []string{bad}); err == nil {
		t.Error("Index accepted a bad archive")
	}
	if archives, _ := c.Archives(); len(archives) != 0 {
		t.Errorf("bad archive recorded: %+v", archives)
	}
}

func TestExportParquet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "UI.wad.client")
	known := wad.HashPath("ux/loadingscreen/background.dds")
	writeArchive(t, path, []testChunk{
		{hash: known, data: []byte("dds bytes"), kind: wad.KindZstd},
		{hash: 7, data: []byte("unnamed"), kind: wad.KindNone},
	})

	c := openCatalog(t)
	if _, err := c.Index(context.Background(), []string{path}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	names := hashtable.New()
	names.Insert(known, "ux/loadingscreen/background.dds")

	var buf bytes.Buffer
	n, err := c.ExportParquet(&buf, names)
	if err != nil {
		t.Fatalf("ExportParquet: %v", err)
	}
	if n != 2 {
		t.Errorf("exported %d rows, want 2", n)
	}

	rows, err := parquet.Read[ExportRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parquet.Read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("read %d rows, want 2", len(rows))
	}
	byHash := make(map[uint64]ExportRow)
	for _, r := range rows {
		byHash[r.Hash] = r
	}
	if r := byHash[known]; r.Name != "ux/loadingscreen/background.dds" || r.Kind != "zstd" {
		t.Errorf("named row = %+v", r)
	}
	if r := byHash[7]; r.Name != "" || r.Kind != "none" || r.UncompressedSize != 7 {
		t.Errorf("unnamed row = %+v", r)
	}
}
