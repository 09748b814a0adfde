package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/crdtdoc/internal/config"
	"github.com/localfirst/crdtdoc/internal/document"
)

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <other-dir>",
		Short: "Merge another document directory's full history into this one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			other, err := loadOtherDocument(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			if err := doc.Merge(other); err != nil {
				return err
			}
			return persistDocument(ctx, doc, backend)
		},
	}
	return cmd
}

// loadOtherDocument opens the document at dir the same way openDocument
// does for the active --dir, but as a read-only source for Merge: its
// own actor identity doesn't matter to the merge, only its history.
func loadOtherDocument(ctx context.Context, dir string) (*document.Document, error) {
	cfg := config.LoadLocalConfigWithEnv(dir)
	backend, err := openBackendAt(dir, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = backend.Close() }()

	actor, err := loadActorAt(dir, cfg)
	if err != nil {
		return nil, err
	}
	full, err := backend.LoadFull(ctx, docBlobName)
	if err != nil {
		return nil, err
	}
	doc, err := document.Load(full, actor)
	if err != nil {
		return nil, err
	}
	incs, err := backend.LoadIncrements(ctx, docBlobName)
	if err != nil {
		return nil, err
	}
	for _, inc := range incs {
		if err := doc.LoadIncremental(inc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
