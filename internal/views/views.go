// Package views renders the HTML pages. Templates are embedded in the
// binary and escaped by html/template; nothing from the store is inserted
// as raw markup.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/isdelr/roleboard/internal/profile"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names.
const (
	Login          = "login"
	UserDashboard  = "user-dashboard"
	AdminDashboard = "admin-dashboard"
	Profile        = "profile"
)

var pages = []string{Login, UserDashboard, AdminDashboard, Profile}

// Picture is what the "picture" partial needs to show a profile blob.
type Picture struct {
	UserID int64
	Blob   string
}

// Kind names the blob's classification for templates.
func (p Picture) Kind() string {
	switch profile.Classify(p.Blob) {
	case profile.KindImageURL:
		return "image"
	case profile.KindSVG:
		return "svg"
	case profile.KindText:
		return "text"
	default:
		return ""
	}
}

// URL returns the blob as an image source. Only blobs classified as image
// URLs are passed through; everything else yields "#".
func (p Picture) URL() template.URL {
	if profile.Classify(p.Blob) != profile.KindImageURL {
		return "#"
	}
	return template.URL(p.Blob)
}

// SVGPath is the sandboxed document URL for SVG blobs, loaded via <img> so
// that scripts inside it never run.
func (p Picture) SVGPath() string {
	return "/profile/" + strconv.FormatInt(p.UserID, 10)
}

var templateFuncs = template.FuncMap{
	"picture": func(userID int64, blob string) Picture {
		return Picture{UserID: userID, Blob: blob}
	},
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	templates map[string]*template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tmpl, err := template.New("base.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/base.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		r.templates[page] = tmpl
	}
	return r, nil
}

// Render executes page with data and writes it with the given status. The
// page is rendered into a buffer first, so a template error leaves the
// response untouched for the caller to report.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data map[string]any) error {
	tmpl, ok := r.templates[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
