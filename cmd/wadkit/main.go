// Command wadkit reads, writes and indexes WAD archives and name hashtables.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/wadkit/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
