package secrets

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Renderer renders a named view.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// ViewData is what every page template receives.
type ViewData struct {
	Authenticated bool
	User          *User
	Flash         string

	// Enabled OAuth providers, keyed by name
	Providers map[string]bool

	// Shown on the secrets page; nil when none exist yet
	Secret *Secret
}

// TemplateRenderer renders the embedded page templates. Each page is parsed
// together with the shared partials.
type TemplateRenderer struct {
	pages map[string]*template.Template
}

var pageNames = []string{"home", "login", "register", "secrets", "submit"}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	out := &TemplateRenderer{pages: map[string]*template.Template{}}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		out.pages[name] = t
	}
	return out, nil
}

// Render executes into a buffer first so a failing template never sends a
// half written page.
func (r *TemplateRenderer) Render(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown view %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return err
	}
	if hw, ok := w.(http.ResponseWriter); ok {
		hw.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler serves the embedded static assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
