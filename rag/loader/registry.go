package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/kbroute/rag"
)

// FileLoader loads a single file into documents.
type FileLoader interface {
	Load(ctx context.Context, path string) ([]rag.Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".txt").
	SupportedTypes() []string
}

// Registry routes Load calls to the appropriate FileLoader based on file extension.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]FileLoader // extension (lowercase, with dot) -> loader
}

// NewRegistry creates a registry pre-populated with the built-in loaders.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]FileLoader)}
	for _, l := range []FileLoader{NewTextLoader(), NewMarkdownLoader()} {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// Register adds or replaces a loader for the given file extension.
// ext should include the leading dot (e.g. ".rst").
func (r *Registry) Register(ext string, l FileLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = l
}

// Lookup returns the loader for path's extension.
func (r *Registry) Lookup(path string) (FileLoader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", path)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}
	return l, nil
}

// SupportedTypes returns all registered extensions, sorted.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
