package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/wadkit/internal/config"
	"github.com/eunmann/wadkit/pkg/catalog"
	"github.com/eunmann/wadkit/pkg/fileutil"
	"github.com/eunmann/wadkit/pkg/humanfmt"
	"github.com/eunmann/wadkit/pkg/logging"
	"github.com/eunmann/wadkit/pkg/memdiag"
)

func runCatalog(out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: wadkit catalog index|find|export")
	}
	switch args[0] {
	case "index":
		return runCatalogIndex(out, args[1:])
	case "find":
		return runCatalogFind(out, args[1:])
	case "export":
		return runCatalogExport(out, args[1:])
	default:
		return fmt.Errorf("unknown catalog command: %s", args[0])
	}
}

func openCatalog(g *globalFlags, db string) (*catalog.Catalog, *config.Config, error) {
	cfg, err := g.setup()
	if err != nil {
		return nil, nil, err
	}
	catCfg := cfg.CatalogConfig()
	if db != "" {
		catCfg.DBPath = db
	}
	c, err := catalog.Open(catCfg)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func runCatalogIndex(out io.Writer, args []string) error {
	fs, g := newFlagSet("catalog index")
	db := fs.String("db", "", "catalog database (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one wad file is required")
	}
	c, _, err := openCatalog(g, *db)
	if err != nil {
		return err
	}
	defer c.Close()

	tracker := memdiag.NewTracker(memdiag.ConfigFromEnv(), logging.WithPhase("catalog_index"))
	tracker.Start()
	defer tracker.Stop()

	stats, err := c.Index(context.Background(), fs.Args())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "indexed %d archives (%d chunks), %d unchanged\n", stats.Indexed, stats.Chunks, stats.Skipped)
	return nil
}

func runCatalogFind(out io.Writer, args []string) error {
	fs, g := newFlagSet("catalog find")
	db := fs.String("db", "", "catalog database (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wadkit catalog find <hash>")
	}
	hash, err := parseHash(fs.Arg(0))
	if err != nil {
		return err
	}
	c, _, err := openCatalog(g, *db)
	if err != nil {
		return err
	}
	defer c.Close()

	locs, err := c.Find(hash)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		return fmt.Errorf("chunk %016x not found", hash)
	}
	for _, loc := range locs {
		fmt.Fprintf(out, "%s\t%s\t%s\n", loc.Archive, loc.Kind, humanfmt.Bytes(loc.UncompressedSize))
	}
	return nil
}

func runCatalogExport(out io.Writer, args []string) error {
	fs, g := newFlagSet("catalog export")
	db := fs.String("db", "", "catalog database (default from config)")
	outPath := fs.StringP("out", "o", "", "parquet file to write")
	namesPath := fs.String("hashtable", "", "hashtable for chunk names (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return errors.New("--out is required")
	}
	c, cfg, err := openCatalog(g, *db)
	if err != nil {
		return err
	}
	defer c.Close()

	if *namesPath == "" {
		*namesPath = cfg.Hashtable
	}
	names, err := openNames(*namesPath)
	if err != nil {
		return err
	}
	defer closeNames(names)

	var rows int
	err = fileutil.WriteAtomic(*outPath, func(f *os.File) error {
		var err error
		rows, err = c.ExportParquet(f, names)
		return err
	})
	if err != nil {
		return fmt.Errorf("export %s: %w", *outPath, err)
	}
	fmt.Fprintf(out, "%s: %d rows\n", *outPath, rows)
	return nil
}
