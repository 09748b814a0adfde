package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/change"
	"github.com/localfirst/crdtdoc/internal/config"
	"github.com/localfirst/crdtdoc/internal/document"
	"github.com/localfirst/crdtdoc/internal/export"
	"github.com/localfirst/crdtdoc/internal/storage"
	"github.com/localfirst/crdtdoc/internal/storage/file"
	"github.com/localfirst/crdtdoc/internal/storage/sqlite"
)

// Global flags, in the shape of cmd/bd's root command. When --dir is not
// given, viper supplies the DOCCTL_DIR environment variable in its place;
// there is no config-file layer. No command reads jsonOutput.
var (
	docDir     string
	jsonOutput bool
)

const docBlobName = "doc"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Inspect and mutate a local-first CRDT document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&docDir, "dir", ".doc", "document directory")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "ignored; output is always plain text")

	v := viper.New()
	v.SetEnvPrefix("DOCCTL")
	v.AutomaticEnv()
	_ = v.BindPFlag("dir", root.PersistentFlags().Lookup("dir"))
	root.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if !cmd.Flags().Changed("dir") {
			if envDir := v.GetString("dir"); envDir != "" {
				docDir = envDir
			}
		}
	}

	root.AddCommand(
		newInitCmd(),
		newSetCmd(),
		newCounterCmd(),
		newIncCmd(),
		newGetCmd(),
		newListInsertCmd(),
		newListCmd(),
		newTextSpliceCmd(),
		newTextCmd(),
		newHeadsCmd(),
		newLogCmd(),
		newMergeCmd(),
		newSyncCmd(),
		newWatchCmd(),
	)
	return root
}

func configPath(docDir string) string { return filepath.Join(docDir, "config.yaml") }

// registryAt opens the machine-wide document registry at its default
// location, returning its path alongside so a caller can save it back.
func registryAt() (*config.Registry, string, error) {
	path, err := config.DefaultRegistryPath()
	if err != nil {
		return nil, "", err
	}
	reg, err := config.LoadRegistry(path)
	if err != nil {
		return nil, "", err
	}
	return reg, path, nil
}

// openBackend picks the storage.Backend named by docDir's config.yaml
// (spec-external concern; SPEC_FULL.md DOMAIN STACK wires both a flat-
// file and a SQLite backend).
func openBackend(cfg *config.LocalConfig) (storage.Backend, error) {
	return openBackendAt(docDir, cfg)
}

func openBackendAt(dir string, cfg *config.LocalConfig) (storage.Backend, error) {
	switch cfg.StorageDriver {
	case "sqlite":
		return sqlite.Open(filepath.Join(dir, "docctl.db"))
	default:
		return file.New(dir)
	}
}

// loadActor reads the actor id persisted at init time.
func loadActor(cfg *config.LocalConfig) (actorid.ActorID, error) {
	return loadActorAt(docDir, cfg)
}

func loadActorAt(dir string, cfg *config.LocalConfig) (actorid.ActorID, error) {
	data, err := os.ReadFile(cfg.ActorIDPath(dir)) // #nosec G304 - path from --dir flag
	if err != nil {
		return "", fmt.Errorf("read actor id (did you run 'docctl init'?): %w", err)
	}
	return actorid.ActorID(data), nil
}

// openDocument reconstructs the document at docDir: the backend's full
// save plus every recorded increment, applied in order (spec §8
// "incremental equivalence").
func openDocument(ctx context.Context) (*document.Document, storage.Backend, *config.LocalConfig, error) {
	cfg := config.LoadLocalConfigWithEnv(docDir)
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	actor, err := loadActor(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	full, err := backend.LoadFull(ctx, docBlobName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load document (did you run 'docctl init'?): %w", err)
	}
	doc, err := document.Load(full, actor)
	if err != nil {
		return nil, nil, nil, err
	}
	incs, err := backend.LoadIncrements(ctx, docBlobName)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, inc := range incs {
		if err := doc.LoadIncremental(inc); err != nil {
			return nil, nil, nil, err
		}
	}
	return doc, backend, cfg, nil
}

// isInteractive reports whether f is attached to a terminal, the same
// check the teacher makes before deciding whether to render progress
// output (cmd/bd/import.go, internal/coop/attach.go): `docctl watch`/
// `docctl sync` use it to stay quiet on success when piped or
// redirected, printing only errors.
func isInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// persistDocument writes doc back as a fresh full save: simpler and
// safer for a one-shot CLI than tracking an incremental watermark
// across process invocations, at the cost of rewriting the whole blob
// every command.
func persistDocument(ctx context.Context, doc *document.Document, backend storage.Backend) error {
	blob, err := doc.Save()
	if err != nil {
		return err
	}
	heads := doc.GetHeads()
	headStrs := make([]string, len(heads))
	for i, h := range heads {
		headStrs[i] = change.HashString(h)
	}
	manifest := export.NewManifest(string(doc.Actor()), headStrs, 0, false)
	return backend.SaveFull(ctx, docBlobName, blob, manifest)
}
