package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/eunmann/wadkit/internal/config"
	"github.com/eunmann/wadkit/pkg/compcache"
	"github.com/eunmann/wadkit/pkg/wad"
)

// isolate keeps tests away from the user's config and cache.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvVar, "")
	t.Setenv("HOME", t.TempDir())
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := RunWith(&out, args); err != nil {
		t.Fatalf("wadkit %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestMissingArguments(t *testing.T) {
	isolate(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"ls"}, "usage"},
		{[]string{"extract", "a.wad"}, "--out"},
		{[]string{"extract", "--out", "x"}, "wad file"},
		{[]string{"pack", "--out", "x.wad"}, "--root"},
		{[]string{"pack", "--root", "x"}, "--out"},
		{[]string{"hashes"}, "usage"},
		{[]string{"hashes", "frobnicate"}, "unknown hashes command"},
		{[]string{"hashes", "lookup", "--hashtable", "x"}, "hash is required"},
		{[]string{"catalog", "find"}, "usage"},
		{[]string{"catalog", "export"}, "--out"},
		{[]string{"cache"}, "usage"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			err := RunWith(&bytes.Buffer{}, tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestPackListExtract(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	root := filepath.Join(dir, "src")

	big := make([]byte, 1000)
	for i := range big {
		big[i] = byte(i * 7 % 251)
	}
	files := map[string][]byte{
		"data/characters/ahri/ahri.bin": []byte("properties"),
		"assets/big.bin":                big,
	}
	writeTree(t, root, files)

	archive := filepath.Join(dir, "out.wad.client")
	names := filepath.Join(dir, "names.bin")
	out := run(t, "pack", "--root", root, "--out", archive, "--names-out", names, "--sub-chunk-size", "64")
	if !strings.Contains(out, "2 files") {
		t.Errorf("pack output = %q", out)
	}

	out = run(t, "ls", "--hashtable", names, archive)
	for _, want := range []string{"assets/big.bin", "data/characters/ahri/ahri.bin", "zstd-chunked", "version 3.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("ls output missing %q:\n%s", want, out)
		}
	}

	extracted := filepath.Join(dir, "extracted")
	run(t, "extract", "--hashtable", names, "--out", extracted, "--workers", "2", archive)
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(extracted, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: extracted content differs", name)
		}
	}
}

func TestHashesCommands(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	table := filepath.Join(dir, "hashes.bin")

	first := filepath.Join(dir, "hashes.game.txt")
	second := filepath.Join(dir, "hashes.lcu.txt")
	writeTree(t, dir, map[string][]byte{
		"hashes.game.txt": []byte("00000000000000aa data/a.bin\n00000000000000bb data/b.bin\n"),
		"hashes.lcu.txt":  []byte("00000000000000cc plugins/c.json\n"),
	})

	out := run(t, "hashes", "import", "--hashtable", table, first)
	if !strings.Contains(out, "2 entries (2 new)") {
		t.Errorf("first import output = %q", out)
	}
	out = run(t, "hashes", "import", "--hashtable", table, second)
	if !strings.Contains(out, "3 entries (1 new)") {
		t.Errorf("second import output = %q", out)
	}

	out = run(t, "hashes", "lookup", "--hashtable", table, "0xbb", "dd")
	want := "00000000000000bb data/b.bin\n00000000000000dd 00000000000000dd\n"
	if out != want {
		t.Errorf("lookup output = %q, want %q", out, want)
	}

	out = run(t, "hashes", "export", "--hashtable", table)
	wantExport := "00000000000000aa data/a.bin\n00000000000000bb data/b.bin\n00000000000000cc plugins/c.json\n"
	if out != wantExport {
		t.Errorf("export output = %q", out)
	}
}

func TestCatalogCommands(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	writeTree(t, root, map[string][]byte{"ui/logo.png": []byte("png")})

	archive := filepath.Join(dir, "UI.wad.client")
	run(t, "pack", "--root", root, "--out", archive)

	db := filepath.Join(dir, "catalog.db")
	out := run(t, "catalog", "index", "--db", db, archive)
	if !strings.Contains(out, "indexed 1 archives") {
		t.Errorf("index output = %q", out)
	}
	out = run(t, "catalog", "index", "--db", db, archive)
	if !strings.Contains(out, "1 unchanged") {
		t.Errorf("re-index output = %q", out)
	}

	hash := wad.HashPath("ui/logo.png")
	out = run(t, "catalog", "find", "--db", db, fmt.Sprintf("%x", hash))
	if !strings.Contains(out, "UI.wad.client") {
		t.Errorf("find output = %q", out)
	}
	if err := RunWith(&bytes.Buffer{}, []string{"catalog", "find", "--db", db, "1234"}); err == nil {
		t.Error("find of unknown hash succeeded")
	}

	parquetPath := filepath.Join(dir, "chunks.parquet")
	out = run(t, "catalog", "export", "--db", db, "--hashtable", filepath.Join(dir, "none.bin"), "--out", parquetPath)
	if !strings.Contains(out, "1 rows") {
		t.Errorf("export output = %q", out)
	}
	if info, err := os.Stat(parquetPath); err != nil || info.Size() == 0 {
		t.Errorf("parquet file missing or empty: %v", err)
	}
}

func TestCacheInspect(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "composition.cache")
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	graph := map[string][]string{"IHashResolver": {"HashtableService"}}
	if err := compcache.Save(path, compcache.NewIdentitySet(id), graph); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := run(t, "cache", "inspect", "--graph", path)
	for _, want := range []string{"1 identities", id.String(), "HashtableService"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}
