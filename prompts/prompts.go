package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/BaSui01/kbroute/types"
)

//go:embed templates/*.txt
var builtin embed.FS

// Template names.
const (
	DecideAction = "decide_action.txt"
	PromptV1     = "prompt_v1.txt"
	PromptV2     = "prompt_v2.txt"
)

// Placeholder names.
const (
	VarQuery   = "query"
	VarContext = "context"
)

var allowedVars = map[string]bool{VarQuery: true, VarContext: true}

// GenerationTemplate returns the template file for a generation prompt version.
func GenerationTemplate(version string) (string, error) {
	switch version {
	case "v1":
		return PromptV1, nil
	case "v2":
		return PromptV2, nil
	default:
		return "", types.NewConfigError("unsupported prompt version %q (want v1 or v2)", version)
	}
}

// Template is a parsed prompt template.
type Template struct {
	Name     string
	segments []segment
}

type segment struct {
	text string
	// variable name; empty for literal text
	variable string
}

// Parse validates and parses template text.
func Parse(name, text string) (*Template, error) {
	var segs []segment
	var lit strings.Builder
	hasQuery := false

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, templateError(name, "unclosed '{' at offset %d", i)
			}
			variable := text[i+1 : i+1+end]
			if !allowedVars[variable] {
				return nil, templateError(name, "unknown placeholder {%s}", variable)
			}
			if variable == VarQuery {
				hasQuery = true
			}
			flush()
			segs = append(segs, segment{variable: variable})
			i += end + 1
		case c == '}':
			return nil, templateError(name, "single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	if !hasQuery {
		return nil, templateError(name, "template has no {query} placeholder")
	}
	return &Template{Name: name, segments: segs}, nil
}

// Render substitutes vars into the template. Missing variables render empty.
func (t *Template) Render(vars map[string]string) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.variable != "" {
			b.WriteString(vars[s.variable])
			continue
		}
		b.WriteString(s.text)
	}
	return b.String()
}

func templateError(name, format string, args ...any) *types.Error {
	return types.NewError(types.ErrTemplate, fmt.Sprintf("prompt template %s: %s", name, fmt.Sprintf(format, args...)))
}

// Store loads and caches templates from a file system.
type Store struct {
	fsys   fs.FS
	source string

	mu        sync.Mutex
	templates map[string]*Template
}

// NewStore returns a store over dir, or over the embedded templates when
// dir is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		sub, _ := fs.Sub(builtin, "templates")
		return NewStoreFS(sub, "builtin")
	}
	return NewStoreFS(os.DirFS(dir), dir)
}

// NewStoreFS returns a store over an arbitrary file system.
func NewStoreFS(fsys fs.FS, source string) *Store {
	return &Store{fsys: fsys, source: source, templates: make(map[string]*Template)}
}

// Source describes where templates come from ("builtin" or a directory).
func (s *Store) Source() string { return s.source }

// Load returns the parsed template, reading it on first use.
func (s *Store) Load(name string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.templates[name]; ok {
		return t, nil
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		msg := "cannot read template"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "template not found"
		}
		return nil, templateError(name, "%s in %s", msg, s.source).WithCause(err)
	}
	t, err := Parse(name, string(data))
	if err != nil {
		return nil, err
	}
	s.templates[name] = t
	return t, nil
}

// Render loads name and substitutes vars.
func (s *Store) Render(name string, vars map[string]string) (string, error) {
	t, err := s.Load(name)
	if err != nil {
		return "", err
	}
	return t.Render(vars), nil
}
