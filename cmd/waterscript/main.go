// Command waterscript inspects a WaterScript project's configuration and its
// compiled-unit cache.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/chazu/waterscript/manifest"
)

func main() {
	dir := flag.String("C", ".", "Directory to search for waterscript.toml")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: waterscript [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  config                 Print the effective configuration\n")
		fmt.Fprintf(os.Stderr, "  cache status           Show unit cache stats\n")
		fmt.Fprintf(os.Stderr, "  cache list             List cached unit hashes\n")
		fmt.Fprintf(os.Stderr, "  cache disasm <hash>    Disassemble a cached unit\n")
		fmt.Fprintf(os.Stderr, "  cache export <file>    Write every cached unit to a bundle\n")
		fmt.Fprintf(os.Stderr, "  cache import <file>    Load a bundle into the cache\n")
	}
	flag.Parse()

	m, err := loadManifest(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		m.Log.Verbosity = 1
	}
	m.ConfigureLogging()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	switch args[0] {
	case "config":
		err = printConfig(os.Stdout, m)
	case "cache":
		err = handleCacheCommand(os.Stdout, args[1:], m)
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest finds the nearest waterscript.toml, falling back to the
// defaults rooted at dir.
func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		m.Dir = dir
	}
	return m, nil
}

func printConfig(w io.Writer, m *manifest.Manifest) error {
	if m.Dir != "" {
		fmt.Fprintf(w, "# %s\n", m.Dir)
	}
	return toml.NewEncoder(w).Encode(m)
}
