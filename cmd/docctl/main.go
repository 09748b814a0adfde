// Command docctl is the CLI surface over internal/document: it opens a
// document directory, runs one mutation/read/sync operation, persists
// the result when the operation changed the document, and exits — no
// resident daemon, no background state between invocations (spec §5: a
// Document is single-threaded and owned by one process at a time).
//
// Grounded on the teacher's cmd/bd: a spf13/cobra command tree under one
// root command with persistent global flags, spf13/viper supplying an
// environment fallback for --dir, and a warn-level log/slog default
// handler on stderr (cmd/bd/sync_bridge.go's slog.Default() pattern);
// no command logs through it.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
