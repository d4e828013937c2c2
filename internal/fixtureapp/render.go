package fixtureapp

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

// renderer holds one template set per page, each combined with base.html.
type renderer struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

func newRenderer() (*renderer, error) {
	r := &renderer{templates: make(map[string]*template.Template)}
	if err := r.parseTemplates(); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return r, nil
}

func (r *renderer) parseTemplates() error {
	base, err := template.ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return fmt.Errorf("failed to parse base template: %w", err)
	}
	pages, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return err
	}
	for _, p := range pages {
		name := path.Base(p)
		if name == "base.html" {
			continue
		}
		clone, err := base.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone base for %s: %w", name, err)
		}
		tmpl, err := clone.ParseFS(templateFS, p)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		r.templates[strings.TrimSuffix(name, ".html")] = tmpl
	}
	return nil
}

// render executes page with data inside the base layout.
func (r *renderer) render(w http.ResponseWriter, status int, page string, data any) error {
	r.mu.RLock()
	tmpl, ok := r.templates[page]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", page, err)
	}
	return nil
}
