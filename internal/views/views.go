// internal/views/views.go
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Page is the data every template receives. Handlers fill in what their page
// uses and leave the rest zero.
type Page struct {
	Title        string
	User         *models.User
	BackendURL   string
	PublicAPIKey string
	Error        string

	// form echo
	Next     string
	Email    string
	Username string
	RoomCode string

	ActiveRoom *models.Room
	Snapshot   *models.RoomSnapshot
	// WebSocketURL is the lobby realtime bridge for this page, if any.
	WebSocketURL string
}

// IsHost reports whether the page's user hosts the snapshot's room.
func (p Page) IsHost() bool {
	return p.User != nil && p.Snapshot != nil && p.Snapshot.IsHost(p.User.ID)
}

// IsMe reports whether id is the page's user.
func (p Page) IsMe(id uuid.UUID) bool {
	return p.User != nil && p.User.ID == id
}

// Renderer executes the embedded page templates. Each page is parsed together
// with layout.html so it can fill the layout's blocks.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"initial": func(s string) string {
		r, _ := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return "?"
		}
		return strings.ToUpper(string(r))
	},
}

// New parses every template under templates/.
func New() (*Renderer, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, e := range entries {
		name := e.Name()
		if name == "layout.html" {
			continue
		}
		t, err := template.Must(layout.Clone()).ParseFS(templateFS, path.Join("templates", name))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(name, ".html")] = t
	}
	return r, nil
}

// Render writes page with the given status. The template is executed into a
// buffer first so a template error can still produce a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data Page) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded browser assets.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
