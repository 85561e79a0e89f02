package notification

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

// Template names known to the embedded renderer.
const (
	TemplateWelcome       = "welcome-email"
	TemplatePasswordReset = "password-reset-email"
	TemplateVerification  = "verification-email"
)

var ErrUnknownTemplate = errors.New("unknown template")

//go:embed templates/*.html
var embedded embed.FS

// HTMLRenderer renders named html/template documents with the sprig
// function set. A variable referenced by a template but absent from the
// mapping is an error, not an empty string.
type HTMLRenderer struct {
	templates map[string]*template.Template
}

// NewHTMLRenderer parses every *.html file under dir in fsys; the template
// name is the file name without extension.
func NewHTMLRenderer(fsys fs.FS, dir string) (*HTMLRenderer, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates in %q", dir)
	}

	r := &HTMLRenderer{templates: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".html")
		t, err := template.New(path.Base(f)).
			Funcs(sprig.FuncMap()).
			Option("missingkey=error").
			ParseFS(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// NewDefaultRenderer loads the templates compiled into the binary.
func NewDefaultRenderer() (*HTMLRenderer, error) {
	return NewHTMLRenderer(embedded, "templates")
}

func (r *HTMLRenderer) Render(name string, vars map[string]any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", &TemplateError{Name: name, Err: ErrUnknownTemplate}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", &TemplateError{Name: name, Err: err}
	}
	return buf.String(), nil
}

// Names lists the loaded template names.
func (r *HTMLRenderer) Names() []string {
	return slices.Sorted(maps.Keys(r.templates))
}
