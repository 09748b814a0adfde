package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newCounterCmd() *cobra.Command {
	var objStr string
	cmd := &cobra.Command{
		Use:   "counter <key> <start>",
		Short: "Create (or reset) a counter at a map key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v0, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			obj, err := resolveObj(doc, objStr)
			if err != nil {
				return err
			}
			if _, _, err := doc.SetCounter(obj, args[0], v0); err != nil {
				return err
			}
			return persistDocument(ctx, doc, backend)
		},
	}
	cmd.Flags().StringVar(&objStr, "obj", "", "target object id (default: the document root)")
	return cmd
}

func newIncCmd() *cobra.Command {
	var objStr string
	cmd := &cobra.Command{
		Use:   "inc <key> <delta>",
		Short: "Increment a counter at a map key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			obj, err := resolveObj(doc, objStr)
			if err != nil {
				return err
			}
			if err := doc.Inc(obj, args[0], delta); err != nil {
				return err
			}
			return persistDocument(ctx, doc, backend)
		},
	}
	cmd.Flags().StringVar(&objStr, "obj", "", "target object id (default: the document root)")
	return cmd
}
