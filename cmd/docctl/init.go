package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/config"
	"github.com/localfirst/crdtdoc/internal/document"
)

func newInitCmd() *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new empty document store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if driver != "file" && driver != "sqlite" {
				return fmt.Errorf("--driver must be \"file\" or \"sqlite\", got %q", driver)
			}
			if err := os.MkdirAll(docDir, 0o700); err != nil {
				return fmt.Errorf("create document dir: %w", err)
			}

			cfg := config.LoadLocalConfig(docDir)
			cfg.StorageDriver = driver
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath(docDir), data, 0o600); err != nil {
				return fmt.Errorf("write config.yaml: %w", err)
			}

			actor, err := actorid.New()
			if err != nil {
				return fmt.Errorf("mint actor id: %w", err)
			}
			if err := os.WriteFile(cfg.ActorIDPath(docDir), []byte(actor), 0o600); err != nil {
				return fmt.Errorf("write actor id: %w", err)
			}

			backend, err := openBackend(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			doc := document.New(actor)
			ctx := cmd.Context()
			if err := persistDocument(ctx, doc, backend); err != nil {
				return err
			}

			if reg, path, err := registryAt(); err == nil {
				_ = reg.Remember(path, docDir, actor.Hex())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized document at %s (actor %s, driver %s)\n", docDir, actor, driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "file", "storage driver: file or sqlite")
	return cmd
}
