package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/kbroute/rag"
)

// DirectoryLoader loads every file in a directory whose name matches Glob.
// Subdirectories are not descended into. Files are processed in name order
// so the resulting index is deterministic.
type DirectoryLoader struct {
	glob     string
	registry *Registry
	logger   *zap.Logger
}

// NewDirectoryLoader creates a DirectoryLoader. An empty glob means "*.txt".
func NewDirectoryLoader(glob string, logger *zap.Logger) *DirectoryLoader {
	if glob == "" {
		glob = "*.txt"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryLoader{
		glob:     glob,
		registry: NewRegistry(),
		logger:   logger.With(zap.String("component", "directory_loader")),
	}
}

// Registry exposes the extension registry for custom loaders.
func (d *DirectoryLoader) Registry() *Registry { return d.registry }

// Load implements rag.DocumentLoader. Files whose extension has no loader
// are skipped with a warning; read failures abort the load.
func (d *DirectoryLoader) Load(ctx context.Context, dir string) ([]rag.Document, error) {
	if _, err := filepath.Match(d.glob, ""); err != nil {
		return nil, fmt.Errorf("loader: invalid glob %q: %w", d.glob, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(d.glob, e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var docs []rag.Document
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		l, err := d.registry.Lookup(path)
		if err != nil {
			d.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		loaded, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}

	d.logger.Debug("documents loaded",
		zap.String("dir", dir),
		zap.String("glob", d.glob),
		zap.Int("files", len(names)),
		zap.Int("documents", len(docs)))

	return docs, nil
}

var _ rag.DocumentLoader = (*DirectoryLoader)(nil)
