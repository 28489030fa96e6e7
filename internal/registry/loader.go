package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/namelens/promptc/internal/promptdef"
)

// Pattern matches prompt documents at any depth.
const Pattern = "**/*.prompt.md"

// Load compiles one prompt document.
func Load(source string, data []byte) (*Entry, error) {
	def, err := promptdef.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	return &Entry{Definition: def, Source: source, Digest: Digest(data)}, nil
}

// Digest returns the hex SHA-256 of a prompt document.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Discover lists prompt documents under dir, relative to it and sorted.
func Discover(dir string) ([]string, error) {
	return discoverFS(os.DirFS(dir), Pattern)
}

// LoadFromDir compiles every prompt document under dir. The first failure
// aborts the load.
func LoadFromDir(dir string) ([]*Entry, error) {
	return loadFS(os.DirFS(dir), Pattern, dir)
}

// LoadResult is the outcome of compiling one file during a scan.
type LoadResult struct {
	Path  string
	Entry *Entry
	Err   error
}

// Scan compiles every prompt document under dir and reports each outcome,
// continuing past failures.
func Scan(dir string) ([]LoadResult, error) {
	fsys := os.DirFS(dir)
	paths, err := discoverFS(fsys, Pattern)
	if err != nil {
		return nil, err
	}
	results := make([]LoadResult, 0, len(paths))
	for _, path := range paths {
		entry, err := loadOne(fsys, path, dir)
		results = append(results, LoadResult{Path: path, Entry: entry, Err: err})
	}
	return results, nil
}

func discoverFS(fsys fs.FS, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func loadFS(fsys fs.FS, pattern, root string) ([]*Entry, error) {
	paths, err := discoverFS(fsys, pattern)
	if err != nil {
		return nil, err
	}
	results := make([]*Entry, 0, len(paths))
	for _, path := range paths {
		entry, err := loadOne(fsys, path, root)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, nil
}

func loadOne(fsys fs.FS, path, root string) (*Entry, error) {
	source := path
	if root != "" {
		source = root + "/" + path
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read prompt %s: %w", source,
			promptdef.WrapError(promptdef.KindIo, err.Error(), err))
	}
	return Load(source, data)
}
