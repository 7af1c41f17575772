package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/waterscript/manifest"
	"github.com/chazu/waterscript/vm"
	"github.com/chazu/waterscript/vm/dist"
)

var errNoCache = errors.New("no persistent cache configured; set [cache] path in waterscript.toml")

// handleCacheCommand processes the `waterscript cache` subcommand.
// Usage:
//
//	waterscript cache status
//	waterscript cache list
//	waterscript cache disasm <hash>
//	waterscript cache export <file>
//	waterscript cache import <file>
func handleCacheCommand(w io.Writer, args []string, m *manifest.Manifest) error {
	if len(args) == 0 {
		return errors.New("usage: waterscript cache [status|list|disasm|export|import] ...")
	}
	path := m.CachePath()
	if path == "" {
		return errNoCache
	}
	store, err := dist.OpenSQLStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	switch args[0] {
	case "status":
		n, err := store.Len(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Cache: %s\n", store.Path())
		fmt.Fprintf(w, "  Units: %d\n", n)
		fmt.Fprintf(w, "  Format version: %d\n", dist.FormatVersion)
		return nil

	case "list":
		units, err := preload(ctx, store)
		if err != nil {
			return err
		}
		for _, h := range units.Hashes() {
			u, _ := units.LookupUnit(h)
			fmt.Fprintf(w, "%x  %d bytes\n", h, len(u.Code()))
		}
		return nil

	case "disasm":
		if len(args) < 2 {
			return errors.New("usage: waterscript cache disasm <hash>")
		}
		h, err := parseHash(args[1])
		if err != nil {
			return err
		}
		u, ok, err := store.Get(ctx, h)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unit %x not cached", h)
		}
		fmt.Fprintln(w, vm.Disassemble(u.Code()))
		return nil

	case "export":
		if len(args) < 2 {
			return errors.New("usage: waterscript cache export <file>")
		}
		units, err := preload(ctx, store)
		if err != nil {
			return err
		}
		b, err := dist.ExportStore(units)
		if err != nil {
			return err
		}
		data, err := dist.MarshalBundle(b)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(w, "Exported %d units to %s\n", len(b.Records), args[1])
		return nil

	case "import":
		if len(args) < 2 {
			return errors.New("usage: waterscript cache import <file>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		b, err := dist.UnmarshalBundle(data)
		if err != nil {
			return err
		}
		units := vm.NewContentStore()
		n, verr := dist.ImportBundle(b, units)
		for _, h := range units.Hashes() {
			u, _ := units.LookupUnit(h)
			if err := store.Put(ctx, h, u); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "Imported %d of %d units\n", n, len(b.Records))
		if verr != nil {
			fmt.Fprintf(w, "  Skipped: %v\n", verr)
		}
		return nil

	default:
		return fmt.Errorf("unknown cache command %q", args[0])
	}
}

func preload(ctx context.Context, store *dist.SQLStore) (*vm.ContentStore, error) {
	units := vm.NewContentStore()
	if _, err := store.Preload(ctx, units); err != nil {
		return nil, err
	}
	return units, nil
}

func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, fmt.Errorf("invalid unit hash %q", s)
	}
	copy(h[:], b)
	return h, nil
}
