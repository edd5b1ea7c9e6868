package benchutil

import (
	"bytes"
	"strings"
	"testing"
)

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(DefaultConfig(50)).Assets()
	b := NewGenerator(DefaultConfig(50)).Assets()
	if len(a) != 50 {
		t.Fatalf("generated %d assets, want 50", len(a))
	}
	for i := range a {
		if a[i].Path != b[i].Path || !bytes.Equal(a[i].Data, b[i].Data) {
			t.Fatalf("asset %d differs between runs with the same seed", i)
		}
	}
}

func TestPathsDistinctAndLowercase(t *testing.T) {
	paths := NewGenerator(DefaultConfig(2000)).Paths()
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate path %q", p)
		}
		seen[p] = true
		if p != strings.ToLower(p) {
			t.Errorf("path %q is not lowercase", p)
		}
	}
}

func TestPayloadSizes(t *testing.T) {
	cfg := DefaultConfig(200)
	cfg.MaxSize = 100
	for _, a := range NewGenerator(cfg).Assets() {
		if len(a.Data) < 1 || len(a.Data) > 100 {
			t.Fatalf("%s: payload of %d bytes outside [1, 100]", a.Path, len(a.Data))
		}
	}
}
