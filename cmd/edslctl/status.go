package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// statusCmd reads the tail of a status file written by `edslctl run
// -statusfile` and prints the most recent Snapshot (spec §4.9 "Progress &
// status": "the scheduler publishes a snapshot counter ... consulted by the
// (out-of-scope) progress UI" — edslctl's `status` subcommand is that
// out-of-scope UI, kept intentionally thin).
func statusCmd(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	path := fs.String("statusfile", "", "path previously passed to 'edslctl run -statusfile'")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("status: -statusfile is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		return fmt.Errorf("open status file: %w", err)
	}
	defer f.Close()

	var last statusLine
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line statusLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		last = line
		found = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan status file: %w", err)
	}
	if !found {
		return fmt.Errorf("status file %q has no snapshots yet", *path)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(last)
}
