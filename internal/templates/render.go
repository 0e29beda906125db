// Package templates renders the HTML fragments patched into the editor page
// over Datastar SSE.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"sync"
	"time"
)

// Globs inside a web file system.
const (
	FragmentsGlob = "templates/fragments/*.html"
	PagesGlob     = "templates/*.html"
)

var funcMap = template.FuncMap{
	// dict builds a map from key-value pairs for nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"epochms": func(t time.Time) int64 { return t.UnixMilli() },
	"datetime": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format("2006-01-02 15:04")
		case int64:
			return time.UnixMilli(t).UTC().Format("2006-01-02 15:04")
		case float64:
			return time.UnixMilli(int64(t)).UTC().Format("2006-01-02 15:04")
		}
		return fmt.Sprint(v)
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	mu        sync.RWMutex
	fsys      fs.FS
	patterns  []string
	templates *template.Template
	defined   map[string]string
}

// New parses the templates in fsys matching any of patterns.
func New(fsys fs.FS, patterns ...string) (*Renderer, error) {
	r := &Renderer{fsys: fsys, patterns: patterns, defined: map[string]string{}}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Define adds (or replaces) a template built at runtime. Defined templates
// survive Reload.
func (r *Renderer) Define(name, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.templates.New(name).Parse(text); err != nil {
		return fmt.Errorf("define template %s: %w", name, err)
	}
	r.defined[name] = text
	return nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload re-parses the templates (useful for dev hot-reload).
func (r *Renderer) Reload() error {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(r.fsys, r.patterns...)
	if err != nil {
		return fmt.Errorf("parse templates %v: %w", r.patterns, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, text := range r.defined {
		if _, err := tmpl.New(name).Parse(text); err != nil {
			return fmt.Errorf("define template %s: %w", name, err)
		}
	}
	r.templates = tmpl
	return nil
}
