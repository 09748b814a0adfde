// Package config loads the per-repository settings for a document store:
// where the local actor id is persisted, the optree branching factor
// override, and the directory watched for incoming sync batches.
//
// Grounded on the teacher's internal/config.LoadLocalConfig /
// LoadLocalConfigWithEnv shape: a YAML file read directly (bypassing any
// process-wide singleton, so it stays correct if the working directory
// changes after the caller's own config is initialized), plus
// environment variable overrides for the sync directory and the storage
// driver.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultBranchFactor is the spec §4.2 compile-time/config constant B
// for the op tree's summary nodes. internal/optree's current
// implementation is a sorted slice per object (see DESIGN.md), so this
// value is not yet consulted by any query path; it is carried here so a
// future node-indexed optree can read it without a config format change.
const DefaultBranchFactor = 16

// LocalConfig is the subset of config.yaml fields read directly from the
// file rather than through a process-wide settings singleton.
type LocalConfig struct {
	ActorIDFile   string `yaml:"actor-id-file"`
	BranchFactor  int    `yaml:"branch-factor"`
	SyncDir       string `yaml:"sync-dir"`
	StorageDriver string `yaml:"storage-driver"` // "file" or "sqlite"
}

// LoadLocalConfig reads and parses config.yaml directly from the
// specified document directory. Returns the default config (actor id
// file "actor-id", BranchFactor 16, sync dir "sync", driver "file") if
// the file doesn't exist or can't be parsed; fields the file leaves out
// keep those defaults.
func LoadLocalConfig(docDir string) *LocalConfig {
	configPath := filepath.Join(docDir, "config.yaml")
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from docDir
	if err != nil {
		return defaultLocalConfig()
	}

	cfg := defaultLocalConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return defaultLocalConfig()
	}
	if cfg.BranchFactor <= 0 {
		cfg.BranchFactor = DefaultBranchFactor
	}
	return cfg
}

func defaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		ActorIDFile:   "actor-id",
		BranchFactor:  DefaultBranchFactor,
		SyncDir:       "sync",
		StorageDriver: "file",
	}
}

// LoadLocalConfigWithEnv reads config.yaml and applies environment
// variable overrides, which take precedence over file values.
//
// Supported environment variables:
//   - DOCCTL_SYNC_DIR: overrides sync-dir
//   - DOCCTL_STORAGE_DRIVER: overrides storage-driver
func LoadLocalConfigWithEnv(docDir string) *LocalConfig {
	cfg := LoadLocalConfig(docDir)

	if envDir := os.Getenv("DOCCTL_SYNC_DIR"); envDir != "" {
		cfg.SyncDir = envDir
	}
	if envDriver := os.Getenv("DOCCTL_STORAGE_DRIVER"); envDriver != "" {
		cfg.StorageDriver = envDriver
	}

	return cfg
}

// ActorIDPath returns docDir joined with the name of the file that
// persists this document directory's local actor id; the result is
// relative when docDir is.
func (c *LocalConfig) ActorIDPath(docDir string) string {
	return filepath.Join(docDir, c.ActorIDFile)
}

// SyncDirPath returns docDir joined with the directory watched for
// incoming sync batches; the result is relative when docDir is.
func (c *LocalConfig) SyncDirPath(docDir string) string {
	return filepath.Join(docDir, c.SyncDir)
}
