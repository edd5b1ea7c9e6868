// Package benchutil generates synthetic game-asset trees for benchmarks and
// tests.
package benchutil

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"testing"
)

// BenchmarkSeed is the default seed for reproducible data.
const BenchmarkSeed = 42

// BenchmarkSizes are the asset counts used by quick benchmarks.
var BenchmarkSizes = []int{1000, 10000, 100000}

// Asset is one synthetic archive entry.
type Asset struct {
	Path string
	Data []byte
}

// GeneratorConfig configures synthetic asset generation.
type GeneratorConfig struct {
	// NumAssets is the number of assets to generate.
	NumAssets int
	// MaxSize bounds the payload of a single asset.
	MaxSize int
	// CompressibleFraction is the share of assets with repetitive payloads.
	CompressibleFraction float64
	// Seed for reproducible generation. 0 uses BenchmarkSeed.
	Seed int64
}

// DefaultConfig returns a mix resembling a champion archive.
func DefaultConfig(numAssets int) GeneratorConfig {
	return GeneratorConfig{
		NumAssets:            numAssets,
		MaxSize:              64 << 10,
		CompressibleFraction: 0.7,
		Seed:                 BenchmarkSeed,
	}
}

// Generator produces synthetic assets.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = BenchmarkSeed
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

var (
	roots      = []string{"assets", "data"}
	categories = []string{"characters", "maps", "sounds", "ux", "particles", "shaders"}
	kinds      = []string{"skins", "animations", "textures", "models", "vo"}
	extensions = []string{".bin", ".dds", ".tex", ".skn", ".skl", ".anm", ".bnk", ".wpk", ".stringtable"}
)

// Paths returns NumAssets distinct lowercase asset paths.
func (g *Generator) Paths() []string {
	paths := make([]string, g.cfg.NumAssets)
	for i := range paths {
		paths[i] = fmt.Sprintf("%s/%s/%s%03d/%s/%s%02d/%06d%s",
			roots[g.rng.Intn(len(roots))],
			categories[g.rng.Intn(len(categories))],
			"entity", g.rng.Intn(200),
			kinds[g.rng.Intn(len(kinds))],
			"set", g.rng.Intn(40),
			i,
			extensions[g.rng.Intn(len(extensions))])
	}
	return paths
}

// Assets returns NumAssets assets with payloads of up to MaxSize bytes.
func (g *Generator) Assets() []Asset {
	paths := g.Paths()
	assets := make([]Asset, len(paths))
	for i, p := range paths {
		assets[i] = Asset{Path: p, Data: g.payload()}
	}
	return assets
}

func (g *Generator) payload() []byte {
	size := 1 + g.rng.Intn(g.cfg.MaxSize)
	if g.rng.Float64() < g.cfg.CompressibleFraction {
		unit := []byte(fmt.Sprintf("field_%04x=%08x;", g.rng.Intn(1<<16), g.rng.Uint32()))
		return bytes.Repeat(unit, size/len(unit)+1)[:size]
	}
	data := make([]byte, size)
	g.rng.Read(data)
	return data
}

// SkipIfNoLongBench skips b unless WADKIT_LONG_BENCH is set.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("WADKIT_LONG_BENCH") == "" {
		b.Skip("set WADKIT_LONG_BENCH=1 to run scaling benchmark")
	}
}
