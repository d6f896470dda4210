package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/kbroute/rag"
)

// MarkdownLoader loads a Markdown file as a single Document. The first
// heading, when present, is recorded as the "title" metadata field; the
// chunker does its own paragraph splitting so sections are not split here.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

func (l *MarkdownLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("markdown loader: %w", err)
	}
	content := string(data)

	meta := fileMetadata(path, "text/markdown")
	if title := firstHeading(content); title != "" {
		meta["title"] = title
	}

	return []rag.Document{{ID: filepath.Base(path), Content: content, Metadata: meta}}, nil
}

func (l *MarkdownLoader) SupportedTypes() []string {
	return []string{".md", ".markdown"}
}

// firstHeading returns the text of the first ATX heading ("# Title").
func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
			continue
		}
		return strings.TrimSpace(trimmed[level:])
	}
	return ""
}
