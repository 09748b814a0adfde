package main

import (
	"fmt"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"

	"github.com/spf13/cobra"

	docsync "github.com/localfirst/crdtdoc/internal/sync"
)

// newWatchCmd runs a long-lived process that applies every batch file
// dropped into the document's sync directory, until interrupted.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the sync directory and apply incoming batches until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, cfg, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			interactive := isInteractive(os.Stdout)
			var mu stdsync.Mutex
			w, err := docsync.NewWatcher(doc, cfg.SyncDirPath(docDir), &mu, func(path string, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "apply %s: %v\n", path, err)
					return
				}
				if interactive {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", path)
				}
			})
			if err != nil {
				return err
			}

			watchCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := w.Run(watchCtx); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			return persistDocument(ctx, doc, backend)
		},
	}
	return cmd
}
