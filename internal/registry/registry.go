package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/namelens/promptc/internal/promptdef"
)

var (
	// ErrNotFound reports a lookup of an unknown prompt name.
	ErrNotFound = errors.New("prompt not found")
	// ErrNameRequired reports a lookup with an empty name.
	ErrNameRequired = errors.New("prompt name is required")
	// ErrNotConfigured reports a lookup on a nil registry.
	ErrNotConfigured = errors.New("prompt registry not configured")
)

// Entry is a compiled prompt definition together with where it came from.
type Entry struct {
	Definition *promptdef.Definition
	Source     string
	// Digest is the hex SHA-256 of the raw document.
	Digest string
}

// Name returns the definition name.
func (e *Entry) Name() string { return e.Definition.Name() }

// Registry provides access to prompt definitions.
type Registry interface {
	Get(name string) (*Entry, error)
	List() []*Entry
}

// InMemoryRegistry stores prompt definitions by name.
type InMemoryRegistry struct {
	entries map[string]*Entry
}

// New builds a registry from entries. Names must be unique.
func New(entries []*Entry) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{entries: make(map[string]*Entry)}
	for _, entry := range entries {
		if entry == nil || entry.Definition == nil {
			continue
		}
		name := entry.Name()
		if existing, ok := reg.entries[name]; ok {
			return nil, fmt.Errorf("duplicate prompt name %s (%s and %s)", name, existing.Source, entry.Source)
		}
		reg.entries[name] = entry
	}
	return reg, nil
}

// Get returns the entry for name.
func (r *InMemoryRegistry) Get(name string) (*Entry, error) {
	if r == nil {
		return nil, ErrNotConfigured
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return entry, nil
}

// List returns entries sorted by name.
func (r *InMemoryRegistry) List() []*Entry {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.entries))
	for name := range r.entries {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	result := make([]*Entry, 0, len(keys))
	for _, name := range keys {
		result = append(result, r.entries[name])
	}
	return result
}

// Len returns the number of registered prompts.
func (r *InMemoryRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Lineage returns the named entry followed by each ancestor reached through
// extends. A parent missing from the registry or a cycle is an error.
func (r *InMemoryRegistry) Lineage(name string) ([]*Entry, error) {
	entry, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	chain := []*Entry{entry}
	seen := map[string]bool{entry.Name(): true}
	for {
		parent, ok := entry.Definition.Extends()
		if !ok {
			return chain, nil
		}
		if seen[parent] {
			return nil, fmt.Errorf("prompt %s: extends cycle through %s", name, parent)
		}
		next, ok := r.entries[parent]
		if !ok {
			return nil, fmt.Errorf("prompt %s extends unknown prompt %s", entry.Name(), parent)
		}
		seen[parent] = true
		chain = append(chain, next)
		entry = next
	}
}

// Verify resolves every lineage and returns one error per broken prompt,
// ordered by name.
func (r *InMemoryRegistry) Verify() []error {
	var problems []error
	for _, entry := range r.List() {
		if _, err := r.Lineage(entry.Name()); err != nil {
			problems = append(problems, err)
		}
	}
	return problems
}
