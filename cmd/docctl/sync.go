package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/localfirst/crdtdoc/internal/idgen"
)

// newSyncCmd drops the document's full change log into its configured
// sync directory as a new batch file, the shape internal/sync.Watcher
// (and another replica's own `docctl watch`) consumes. A one-shot CLI
// has no durable in-process watermark to export only the deltas since
// its own last invocation, so every sync call re-broadcasts the whole
// log; the causal-readiness queue on the receiving end (spec §4.5)
// already discards hashes it has already recorded, so re-sending is
// redundant but never incorrect.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Write the full change log as a new batch file into the sync directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, cfg, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			blob, err := doc.Save()
			if err != nil {
				return err
			}
			if len(blob) == 0 {
				if isInteractive(os.Stdout) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to sync")
				}
				return nil
			}

			syncDir := cfg.SyncDirPath(docDir)
			if err := os.MkdirAll(syncDir, 0o700); err != nil {
				return fmt.Errorf("create sync dir: %w", err)
			}

			heads := doc.GetHeads()
			var tag string
			if len(heads) > 0 {
				tag = idgen.ShortHash(heads[0])
			} else {
				tag = "root"
			}
			name := fmt.Sprintf("batch-%s.bin", tag)
			if err := atomicWriteBatch(filepath.Join(syncDir, name), blob); err != nil {
				return err
			}

			if err := persistDocument(ctx, doc, backend); err != nil {
				return err
			}
			if isInteractive(os.Stdout) {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", name, len(blob))
			}
			return nil
		},
	}
	return cmd
}

func atomicWriteBatch(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp batch file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write batch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close batch file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod batch file: %w", err)
	}
	return os.Rename(tmpPath, path)
}
