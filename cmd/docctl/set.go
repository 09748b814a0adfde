package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/crdtdoc/internal/document"
	"github.com/localfirst/crdtdoc/internal/op"
)

func newSetCmd() *cobra.Command {
	var forceString bool
	var makeKind string
	var objStr string
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a map key to a scalar value, or make a nested object",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if makeKind != "" {
				kind, err := parseKind(makeKind)
				if err != nil {
					return err
				}
				child, err := doc.MakeObject(obj, args[0], kind)
				if err != nil {
					return err
				}
				if err := persistDocument(ctx, doc, backend); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", doc.FormatObjID(child))
				return nil
			}

			if len(args) != 2 {
				return fmt.Errorf("set <key> <value> requires a value unless --make is given")
			}
			if _, _, err := doc.Set(obj, args[0], parseValue(args[1], forceString)); err != nil {
				return err
			}
			return persistDocument(ctx, doc, backend)
		},
	}
	cmd.Flags().BoolVar(&forceString, "string", false, "treat the value as a string even if it looks numeric")
	cmd.Flags().StringVar(&makeKind, "make", "", "instead of a scalar, create a nested object: map, list, or text")
	cmd.Flags().StringVar(&objStr, "obj", "", "target object id (default: the document root)")
	return cmd
}

func newGetCmd() *cobra.Command {
	var objStr string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a map key's current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			values := doc.Values(obj, args[0])
			fmt.Fprintln(cmd.OutOrStdout(), formatValues(values))
			return nil
		},
	}
	cmd.Flags().StringVar(&objStr, "obj", "", "target object id (default: the document root)")
	return cmd
}

func resolveObj(doc *document.Document, s string) (op.ObjID, error) {
	if s == "" {
		return document.Root, nil
	}
	return doc.ParseObjID(s)
}

func parseKind(s string) (op.Kind, error) {
	switch s {
	case "map":
		return op.KindMap, nil
	case "list":
		return op.KindList, nil
	case "text":
		return op.KindText, nil
	default:
		return 0, fmt.Errorf("--make must be map, list, or text, got %q", s)
	}
}
