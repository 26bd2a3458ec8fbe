// Package prompt holds the instruction templates used by the orchestration
// graph. Templates are YAML documents baked into the binary with go:embed;
// a workspace may override any of them by dropping a YAML file with the
// same id into .termcoder/prompts/.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"termcoder/internal/logging"
)

//go:embed templates/*.yaml
var embedded embed.FS

// ErrUnknownTemplate is returned when rendering an id that was never loaded.
var ErrUnknownTemplate = errors.New("unknown prompt template")

// Template is one named prompt.
type Template struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Text        string `yaml:"template"`
	Source      string `yaml:"-"`

	parsed *template.Template
}

func (t *Template) compile() error {
	if t.ID == "" {
		return fmt.Errorf("%s: missing id", t.Source)
	}
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("%s: template %q is empty", t.Source, t.ID)
	}
	parsed, err := template.New(t.ID).Option("missingkey=error").Parse(t.Text)
	if err != nil {
		return fmt.Errorf("%s: %w", t.Source, err)
	}
	t.parsed = parsed
	return nil
}

// Library is a set of templates keyed by id. Safe for concurrent use.
type Library struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLibrary returns a library holding the built-in templates.
func NewLibrary() (*Library, error) {
	lib := &Library{templates: make(map[string]*Template)}
	if err := lib.loadFS(embedded, "templates"); err != nil {
		return nil, fmt.Errorf("failed to load built-in prompts: %w", err)
	}
	return lib, nil
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the shared built-in library. The embedded templates are
// covered by tests, so a parse failure here is a programming error.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := NewLibrary()
		if err != nil {
			panic(err)
		}
		defaultLib = lib
	})
	return defaultLib
}

// LoadDir overrides or extends templates from YAML files in dir. A missing
// directory is not an error. Returns the number of templates loaded.
func (l *Library) LoadDir(dir string) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	before := l.Count()
	if err := l.loadFS(os.DirFS(dir), "."); err != nil {
		return 0, err
	}
	logging.Boot("Loaded prompt overrides from %s (%d templates)", dir, l.Count()-before)
	return l.Count() - before, nil
}

func (l *Library) loadFS(fsys fs.FS, root string) error {
	loaded := make([]*Template, 0, 8)
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		t.Source = path
		if err := t.compile(); err != nil {
			return err
		}
		loaded = append(loaded, &t)
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range loaded {
		l.templates[t.ID] = t
	}
	return nil
}

// Get returns a template by id.
func (l *Library) Get(id string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[id]
	return t, ok
}

// IDs returns the loaded template ids, sorted.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.templates))
	for id := range l.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of loaded templates.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.templates)
}

// Render executes template id with data.
func (l *Library) Render(id string, data any) (string, error) {
	t, ok := l.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", id, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
