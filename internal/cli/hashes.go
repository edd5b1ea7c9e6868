package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/wadkit/pkg/fileutil"
	"github.com/eunmann/wadkit/pkg/hashtable"
)

func runHashes(out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: wadkit hashes import|export|lookup")
	}
	switch args[0] {
	case "import":
		return runHashesImport(out, args[1:])
	case "export":
		return runHashesExport(out, args[1:])
	case "lookup":
		return runHashesLookup(out, args[1:])
	default:
		return fmt.Errorf("unknown hashes command: %s", args[0])
	}
}

// runHashesImport merges text hashtables into the binary table.
func runHashesImport(out io.Writer, args []string) error {
	fs, g := newFlagSet("hashes import")
	path := fs.String("hashtable", "", "binary hashtable to update (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one text hashtable is required")
	}
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	if *path == "" {
		*path = cfg.Hashtable
	}

	table := hashtable.New()
	if fileutil.Exists(*path) {
		table, err = hashtable.Open(*path)
		if err != nil {
			return err
		}
		defer table.Close()
	}
	before := table.Len()

	for _, src := range fs.Args() {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		_, err = table.LoadCDTB(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("load %s: %w", src, err)
		}
	}

	stats, err := table.WriteFile(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d entries (%d new), %d segments, %d deduplicated\n",
		*path, stats.Entries, stats.Entries-before, stats.Segments, stats.Deduplicated)
	return nil
}

func runHashesExport(out io.Writer, args []string) error {
	fs, g := newFlagSet("hashes export")
	path := fs.String("hashtable", "", "binary hashtable to read (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	if *path == "" {
		*path = cfg.Hashtable
	}

	table, err := hashtable.Open(*path)
	if err != nil {
		return err
	}
	defer table.Close()
	return table.WriteCDTB(out)
}

func runHashesLookup(out io.Writer, args []string) error {
	fs, g := newFlagSet("hashes lookup")
	path := fs.String("hashtable", "", "binary hashtable to read (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one hash is required")
	}
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	if *path == "" {
		*path = cfg.Hashtable
	}

	table, err := hashtable.Open(*path)
	if err != nil {
		return err
	}
	defer table.Close()

	for _, arg := range fs.Args() {
		hash, err := parseHash(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%016x %s\n", hashtable.Key(hash), table.NameOrHex(hash))
	}
	return nil
}
