package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BaSui01/kbroute/rag"
)

// TextLoader loads a plain text file as a single Document.
type TextLoader struct{}

// NewTextLoader creates a TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("text loader: %w", err)
	}

	return []rag.Document{{
		ID:       filepath.Base(path),
		Content:  string(data),
		Metadata: fileMetadata(path, "text/plain"),
	}}, nil
}

func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt"}
}

func fileMetadata(path, contentType string) map[string]any {
	return map[string]any{
		"source_file":  filepath.Base(path),
		"source_path":  path,
		"content_type": contentType,
	}
}
