// Package cli implements the wadkit command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/eunmann/wadkit/internal/config"
	"github.com/eunmann/wadkit/pkg/hashtable"
	"github.com/eunmann/wadkit/pkg/logging"
)

const usage = `usage: wadkit <command> [options]
commands:
  ls <wad>                      list chunks
  extract <wad>...              extract chunks to a directory
  pack --root <dir> --out <wad> build an archive from a directory
  hashes import|export|lookup   manage the name hashtable
  catalog index|find|export     index chunks across archives
  cache inspect <file>          show a composition cache`

// Run executes the CLI with the given arguments, writing results to stdout.
func Run(args []string) error {
	return RunWith(os.Stdout, args)
}

// RunWith is Run with an explicit output writer.
func RunWith(out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "ls":
		return runList(out, args[1:])
	case "extract":
		return runExtract(out, args[1:])
	case "pack":
		return runPack(out, args[1:])
	case "hashes":
		return runHashes(out, args[1:])
	case "catalog":
		return runCatalog(out, args[1:])
	case "cache":
		return runCache(out, args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	pretty     bool
}

func newFlagSet(name string) (*pflag.FlagSet, *globalFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	g := &globalFlags{}
	fs.StringVar(&g.configPath, "config", "", "path to wadkit.yaml (default $"+config.EnvVar+")")
	fs.BoolVar(&g.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&g.pretty, "pretty", false, "human-friendly log output")
	return fs, g
}

// setup loads the configuration and initializes logging. Flags override
// the file's log settings.
func (g *globalFlags) setup() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(g.debug || cfg.Log.Debug, g.pretty || cfg.Log.Pretty)
	return cfg, nil
}

// parseHash accepts a hex hash with or without a 0x prefix.
func parseHash(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q", s)
	}
	return h, nil
}

// openNames opens the hashtable at path. A missing file yields nil, which
// every consumer treats as "no names".
func openNames(path string) (*hashtable.Table, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logging.L().Debug().Str("path", path).Msg("no hashtable, using hex names")
		return nil, nil
	}
	return hashtable.Open(path)
}

func closeNames(t *hashtable.Table) {
	if t != nil {
		t.Close()
	}
}
