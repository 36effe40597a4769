// Package workspace holds the host-owned registry of open workspaces.
package workspace

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Settings holds workspace-local configuration.
type Settings struct {
	// GitRoot points at the repository when it is not the workspace directory itself.
	// Relative values are resolved against Path.
	GitRoot string `yaml:"git_root" json:"gitRoot,omitempty"`
}

// Entry identifies one open workspace.
type Entry struct {
	ID       string   `yaml:"-" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Path     string   `yaml:"path" json:"path"`
	Settings Settings `yaml:"settings" json:"settings"`
}

// RepoPath returns the directory expected to hold the repository for the entry.
func (e Entry) RepoPath() string {
	root := strings.TrimSpace(e.Settings.GitRoot)
	if root == "" {
		return e.Path
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Join(e.Path, root)
}

// Registry maps workspace ids to entries. Reads hand out copies so callers never hold
// the lock while working with an entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Open adds or replaces the entry with the given id.
func (r *Registry) Open(entry Entry) error {
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return fmt.Errorf("workspace id is required")
	}
	if strings.TrimSpace(entry.Path) == "" {
		return fmt.Errorf("workspace %s: path is required", entry.ID)
	}
	abs, err := filepath.Abs(entry.Path)
	if err != nil {
		return fmt.Errorf("workspace %s: resolve path: %w", entry.ID, err)
	}
	entry.Path = abs
	if entry.Name == "" {
		entry.Name = filepath.Base(abs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return nil
}

// Close removes the entry. Closing an unknown id is not an error.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// List returns copies of all entries sorted by id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps the full set of entries atomically. Invalid entries abort the swap.
func (r *Registry) Replace(entries []Entry) error {
	next := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		staged := NewRegistry()
		if err := staged.Open(entry); err != nil {
			return err
		}
		normalized, _ := staged.Get(strings.TrimSpace(entry.ID))
		next[normalized.ID] = normalized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = next
	return nil
}
