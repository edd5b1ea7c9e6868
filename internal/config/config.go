// Package config loads the wadkit.yaml tool configuration.
//
// The file is optional: without one, Default applies. A path given on the
// command line wins over the WADKIT_CONFIG environment variable.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/wadkit/pkg/catalog"
	"github.com/eunmann/wadkit/pkg/compress"
	"github.com/eunmann/wadkit/pkg/extract"
	"github.com/eunmann/wadkit/pkg/membudget"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "WADKIT_CONFIG"

// Config is the tool configuration.
type Config struct {
	// Hashtable is the binary hashtable used to name chunks.
	Hashtable string        `yaml:"hashtable"`
	Catalog   CatalogConfig `yaml:"catalog"`
	Extract   ExtractConfig `yaml:"extract"`
	Pack      PackConfig    `yaml:"pack"`
	Log       LogConfig     `yaml:"log"`
}

// CatalogConfig configures the chunk catalog.
type CatalogConfig struct {
	DB          string `yaml:"db"`
	Synchronous string `yaml:"synchronous"`
	Workers     int    `yaml:"workers"`
}

// ExtractConfig configures extraction.
type ExtractConfig struct {
	Workers   int  `yaml:"workers"`
	Overwrite bool `yaml:"overwrite"`
	// MemoryBudget is a size such as "2GiB"; empty uses a quarter of RAM.
	MemoryBudget string `yaml:"memory_budget"`
}

// PackConfig configures archive building.
type PackConfig struct {
	// Level is fastest, default or better.
	Level string `yaml:"level"`
	// SubChunkSize splits entries larger than this into chunked zstd
	// blocks; zero disables splitting.
	SubChunkSize int `yaml:"sub_chunk_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Debug  bool `yaml:"debug"`
	Pretty bool `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".cache", "wadkit")

	return &Config{
		Hashtable: filepath.Join(root, "hashes.bin"),
		Catalog: CatalogConfig{
			DB:          filepath.Join(root, "catalog.db"),
			Synchronous: "NORMAL",
			Workers:     runtime.NumCPU(),
		},
		Extract: ExtractConfig{
			Workers: runtime.NumCPU(),
		},
		Pack: PackConfig{
			Level: "default",
		},
	}
}

// Load reads the file at path, or the file named by WADKIT_CONFIG when path
// is empty. With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the file at path over the defaults. ${VAR} references in
// paths are expanded.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Hashtable = os.ExpandEnv(cfg.Hashtable)
	cfg.Catalog.DB = os.ExpandEnv(cfg.Catalog.DB)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every section converts to valid component options.
func (c *Config) Validate() error {
	catCfg := c.CatalogConfig()
	if err := catCfg.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if c.Extract.Workers < 1 {
		return fmt.Errorf("extract: workers must be at least 1, got %d", c.Extract.Workers)
	}
	if _, err := c.memoryBudget(); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if _, err := c.PackLevel(); err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	if c.Pack.SubChunkSize < 0 {
		return errors.New("pack: sub_chunk_size must be non-negative")
	}
	return nil
}

// CatalogConfig returns the catalog database configuration.
func (c *Config) CatalogConfig() catalog.Config {
	cfg := catalog.DefaultConfig(c.Catalog.DB)
	if c.Catalog.Synchronous != "" {
		cfg.Synchronous = c.Catalog.Synchronous
	}
	cfg.Workers = c.Catalog.Workers
	return cfg
}

// ExtractOptions returns extraction options writing to outDir.
func (c *Config) ExtractOptions(outDir string) extract.Options {
	opts := extract.DefaultOptions(outDir)
	opts.Workers = c.Extract.Workers
	opts.Overwrite = c.Extract.Overwrite
	opts.MemoryBudget, _ = c.memoryBudget()
	return opts
}

func (c *Config) memoryBudget() (int64, error) {
	if c.Extract.MemoryBudget == "" {
		return 0, nil
	}
	return membudget.ParseSize(c.Extract.MemoryBudget)
}

// PackLevel returns the configured compression level.
func (c *Config) PackLevel() (compress.Level, error) {
	switch c.Pack.Level {
	case "fastest":
		return compress.LevelFastest, nil
	case "", "default":
		return compress.LevelDefault, nil
	case "better":
		return compress.LevelBetter, nil
	default:
		return 0, fmt.Errorf("unknown level %q", c.Pack.Level)
	}
}
