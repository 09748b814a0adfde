package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// RegistryEntry records one document directory docctl has opened before,
// so a bare `docctl` invocation outside any flag can recall which actor
// id a directory was last opened with.
type RegistryEntry struct {
	Path       string    `toml:"path"`
	ActorIDHex string    `toml:"actor_id_hex"`
	LastUsed   time.Time `toml:"last_used"`
}

// Registry is the machine-wide record of known documents, read/written
// with github.com/BurntSushi/toml the way the teacher's internal/recipes
// package persists its own user-level TOML file.
type Registry struct {
	Documents []RegistryEntry `toml:"document"`
}

// DefaultRegistryPath returns ~/.config/docctl/registry.toml, honoring
// $XDG_CONFIG_HOME when set.
func DefaultRegistryPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve registry path: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "docctl", "registry.toml"), nil
}

// LoadRegistry reads the registry at path, returning an empty Registry
// (not an error) if the file does not yet exist.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path from DefaultRegistryPath or caller-supplied flag
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var reg Registry
	if _, err := toml.Decode(string(data), &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return &reg, nil
}

// Remember records (or updates) the actor id last used to open docDir,
// and writes the registry back to path.
func (r *Registry) Remember(path, docDir, actorIDHex string) error {
	abs, err := filepath.Abs(docDir)
	if err != nil {
		return fmt.Errorf("resolve document path: %w", err)
	}
	now := time.Now()
	for i := range r.Documents {
		if r.Documents[i].Path == abs {
			r.Documents[i].ActorIDHex = actorIDHex
			r.Documents[i].LastUsed = now
			return r.save(path)
		}
	}
	r.Documents = append(r.Documents, RegistryEntry{Path: abs, ActorIDHex: actorIDHex, LastUsed: now})
	return r.save(path)
}

// Lookup returns the entry for docDir, if known.
func (r *Registry) Lookup(docDir string) (RegistryEntry, bool) {
	abs, err := filepath.Abs(docDir)
	if err != nil {
		return RegistryEntry{}, false
	}
	for _, e := range r.Documents {
		if e.Path == abs {
			return e, true
		}
	}
	return RegistryEntry{}, false
}

// Recent returns the registry's entries ordered most-recently-used first.
func (r *Registry) Recent() []RegistryEntry {
	out := append([]RegistryEntry(nil), r.Documents...)
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out
}

func (r *Registry) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	encoder := toml.NewEncoder(tmp)
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return os.Chmod(path, 0o600)
}
