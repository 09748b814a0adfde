package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/crdtdoc/internal/change"
)

func newHeadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heads",
		Short: "Print the document's current frontier hashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			for _, h := range doc.GetHeads() {
				fmt.Fprintln(cmd.OutOrStdout(), change.HashString(h))
			}
			return nil
		},
	}
	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print every recorded change: hash, actor, seq, op and dep counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			for _, c := range doc.GetChanges(nil) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s actor=%s seq=%d ops=%d deps=%d\n",
					change.HashString(c.Hash), doc.ActorAt(c.ActorIdx), c.Seq, len(c.Ops), len(c.Deps))
			}
			return nil
		},
	}
	return cmd
}
