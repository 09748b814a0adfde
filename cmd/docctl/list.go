package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newListInsertCmd() *cobra.Command {
	var forceString bool
	cmd := &cobra.Command{
		Use:   "list-insert <list-obj> <index> <value>",
		Short: "Insert a value into a list at an index",
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

			list, err := doc.ParseObjID(args[0])
			if err != nil {
				return err
			}
			if _, err := doc.Insert(list, index, parseValue(args[2], forceString)); err != nil {
				return err
			}
			return persistDocument(ctx, doc, backend)
		},
	}
	cmd.Flags().BoolVar(&forceString, "string", false, "treat the value as a string even if it looks numeric")
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <list-obj>",
		Short: "Print a list object's current elements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, backend, _, err := openDocument(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			list, err := doc.ParseObjID(args[0])
			if err != nil {
				return err
			}
			for i, v := range doc.ListValues(list) {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %v\n", i, v.Value)
			}
			return nil
		},
	}
	return cmd
}
