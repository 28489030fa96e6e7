package registry

import (
	"embed"
	"fmt"
)

//go:embed prompts/*.prompt.md
var defaultPromptsFS embed.FS

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Entry, error) {
	entries, err := loadFS(defaultPromptsFS, "prompts/*.prompt.md", "")
	if err != nil {
		return nil, fmt.Errorf("load embedded prompts: %w", err)
	}
	return entries, nil
}

// DefaultRegistry builds a registry from embedded prompts.
func DefaultRegistry() (*InMemoryRegistry, error) {
	entries, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	return New(entries)
}

// Build loads dir (when set) on top of the embedded defaults. A prompt in dir
// may not reuse a default name.
func Build(dir string, includeDefaults bool) (*InMemoryRegistry, error) {
	var entries []*Entry
	if includeDefaults {
		defaults, err := LoadDefaults()
		if err != nil {
			return nil, err
		}
		entries = append(entries, defaults...)
	}
	if dir != "" {
		loaded, err := LoadFromDir(dir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, loaded...)
	}
	return New(entries)
}
