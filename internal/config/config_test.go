package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eunmann/wadkit/pkg/compress"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wadkit.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pack.Level != "default" {
		t.Errorf("Pack.Level = %q, want default", cfg.Pack.Level)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("WADKIT_TEST_ROOT", "/srv/league")
	path := writeConfig(t, `
hashtable: ${WADKIT_TEST_ROOT}/hashes.game.bin
catalog:
  db: /tmp/catalog.db
  workers: 3
extract:
  workers: 5
  overwrite: true
  memory_budget: 512MiB
pack:
  level: better
  sub_chunk_size: 65536
log:
  pretty: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Hashtable != "/srv/league/hashes.game.bin" {
		t.Errorf("Hashtable = %q", cfg.Hashtable)
	}
	if cfg.Catalog.Synchronous != "NORMAL" {
		t.Errorf("unset field lost its default: %q", cfg.Catalog.Synchronous)
	}
	if !cfg.Log.Pretty || cfg.Log.Debug {
		t.Errorf("Log = %+v", cfg.Log)
	}

	catCfg := cfg.CatalogConfig()
	if catCfg.DBPath != "/tmp/catalog.db" || catCfg.Workers != 3 {
		t.Errorf("CatalogConfig = %+v", catCfg)
	}
	opts := cfg.ExtractOptions("out")
	if opts.OutDir != "out" || opts.Workers != 5 || !opts.Overwrite || opts.MemoryBudget != 512<<20 {
		t.Errorf("ExtractOptions = %+v", opts)
	}
	level, err := cfg.PackLevel()
	if err != nil || level != compress.LevelBetter {
		t.Errorf("PackLevel = %v, %v", level, err)
	}
	if cfg.Pack.SubChunkSize != 65536 {
		t.Errorf("SubChunkSize = %d", cfg.Pack.SubChunkSize)
	}
}

func TestLoadUsesEnvVar(t *testing.T) {
	path := writeConfig(t, "extract:\n  workers: 9\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extract.Workers != 9 {
		t.Errorf("Extract.Workers = %d, want 9", cfg.Extract.Workers)
	}

	explicit := writeConfig(t, "extract:\n  workers: 2\n")
	cfg, err = Load(explicit)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extract.Workers != 2 {
		t.Errorf("explicit path did not win: workers = %d", cfg.Extract.Workers)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "catalog: [unclosed"},
		{"bad level", "pack:\n  level: ludicrous\n"},
		{"bad synchronous", "catalog:\n  synchronous: MAYBE\n"},
		{"zero workers", "extract:\n  workers: 0\n"},
		{"negative sub chunk", "pack:\n  sub_chunk_size: -1\n"},
		{"bad memory budget", "extract:\n  memory_budget: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.body)); err == nil {
				t.Error("LoadFile accepted invalid config")
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile accepted a missing file")
	}
}
