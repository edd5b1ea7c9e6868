package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/wadkit/pkg/compcache"
)

func runCache(out io.Writer, args []string) error {
	if len(args) == 0 || args[0] != "inspect" {
		return errors.New("usage: wadkit cache inspect <file>")
	}
	fs, g := newFlagSet("cache inspect")
	graph := fs.Bool("graph", false, "also print the composition graph")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wadkit cache inspect <file>")
	}
	if _, err := g.setup(); err != nil {
		return err
	}

	r, err := compcache.OpenFile(fs.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	ids, err := r.ReadAssemblyCatalog()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d identities\n", ids.Len())
	for _, id := range ids.IDs() {
		fmt.Fprintf(out, "  %s\n", id)
	}

	if *graph {
		var v any
		if err := r.ReadComposition(&v); err != nil {
			return err
		}
		fmt.Fprintf(out, "graph: %v\n", v)
	}
	return nil
}
