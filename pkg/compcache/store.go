package compcache

import (
	"errors"
	"fmt"
	"os"

	"github.com/eunmann/wadkit/pkg/fileutil"
	"github.com/eunmann/wadkit/pkg/logging"
)

// Load decodes the graph cached at path into dst when the cached identity
// set equals current. It returns ErrStale when the sets differ; the caller
// rebuilds the graph and calls Save.
func Load(path string, current IdentitySet, dst any) (err error) {
	r, err := OpenFile(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()

	cached, err := r.ReadAssemblyCatalog()
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if !cached.Equal(current) {
		logging.L().Debug().
			Str("path", path).
			Int("cached", cached.Len()).
			Int("current", current.Len()).
			Msg("composition cache stale")
		return ErrStale
	}

	if err := r.ReadComposition(dst); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// Save atomically replaces path with a container holding ids and graph.
func Save(path string, ids IdentitySet, graph any) error {
	err := fileutil.WriteAtomic(path, func(f *os.File) error {
		return NewWriter(f).Write(ids, graph)
	})
	if err != nil {
		return fmt.Errorf("save composition cache %s: %w", path, err)
	}
	logging.L().Debug().Str("path", path).Int("identities", ids.Len()).Msg("saved composition cache")
	return nil
}
