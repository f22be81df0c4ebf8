package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

//go:embed templates
var TemplatesFS embed.FS

//go:embed static
var StaticFS embed.FS

// Templates holds one template set per page. Every page defines the same
// "content" block, so pages cannot share a set.
type Templates struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"datetime": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "Never"
		}
		return t.Format("02 Jan 2006 15:04")
	},
}

// LoadTemplates parses the base layout together with each page under
// templates/pages.
func LoadTemplates() (*Templates, error) {
	entries, err := fs.ReadDir(TemplatesFS, "templates/pages")
	if err != nil {
		return nil, err
	}

	t := &Templates{pages: make(map[string]*template.Template, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		page, err := template.New(name).Funcs(funcs).ParseFS(TemplatesFS,
			"templates/layouts/base.html",
			path.Join("templates/pages", name),
		)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		t.pages[name] = page
	}

	return t, nil
}

// Render executes the base layout with the named page's content.
func (t *Templates) Render(w io.Writer, name string, data interface{}) error {
	page, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return page.ExecuteTemplate(w, "base", data)
}

// GetStaticFS returns the static file system for serving static files
func GetStaticFS() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}
