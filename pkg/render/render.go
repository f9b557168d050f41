// Package render provides HTML escaping and template rendering for handler
// code. It produces byte payloads for response body events; it is not part
// of the protocol engine.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
)

// Templates renders named templates with contextual auto-escaping. Values
// of type Raw bypass escaping.
type Templates struct {
	tmpl *template.Template
}

// Load parses every template matching patterns from fsys. Typical use
// embeds templates with go:embed:
//
//	//go:embed templates/*.html
//	var templateFS embed.FS
//
//	t, err := render.Load(templateFS, "templates/*.html")
func Load(fsys fs.FS, patterns ...string) (*Templates, error) {
	tmpl, err := newTemplate("").ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Templates{tmpl: tmpl}, nil
}

// Parse builds a single named template from source text, for handlers
// that keep their page inline.
func Parse(name, text string) (*Templates, error) {
	tmpl, err := newTemplate(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("render: parse %q: %w", name, err)
	}
	return &Templates{tmpl: tmpl}, nil
}

func newTemplate(name string) *template.Template {
	return template.New(name).Funcs(template.FuncMap{
		"raw": func(r Raw) template.HTML { return template.HTML(r) },
	})
}

// Render executes the named template with data and returns the escaped
// payload.
func (t *Templates) Render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render: execute %q: %w", name, err)
	}
	return buf.Bytes(), nil
}
