package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newTextSpliceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text-splice <text-obj> <index> <string>",
		Short: "Insert a run of characters into a text object at an index",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			text, err := doc.ParseObjID(args[0])
			if err != nil {
				return err
			}
			if _, err := doc.SpliceText(text, index, args[2]); err != nil {
				return err
			}
			return persistDocument(ctx, doc, backend)
		},
	}
	return cmd
}

func newTextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <text-obj>",
		Short: "Print a text object's current contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			text, err := doc.ParseObjID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.Text(text))
			return nil
		},
	}
	return cmd
}
