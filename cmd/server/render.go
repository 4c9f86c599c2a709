package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"example.com/postfeed/internal/apperr"
	"example.com/postfeed/internal/feed"
	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/models"
	"example.com/postfeed/internal/social"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"index.html", "group.html", "follow.html", "profile.html", "post.html",
	"new.html", "login.html", "signup.html", "404.html", "500.html",
}

// templates holds one parsed set per page, each layered on base and partials.
type templates struct {
	pages map[string]*template.Template
}

func parseTemplates(funcs template.FuncMap) (*templates, error) {
	t := &templates{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/base.html", "templates/partials.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}
	return t, nil
}

// execute renders a named template of page into w.
func (t *templates) execute(w io.Writer, page, name string, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return tmpl.ExecuteTemplate(w, name, data)
}

func templateFuncs(mediaURL func(string) string) template.FuncMap {
	return template.FuncMap{
		"media": mediaURL,
		"date":  func(t time.Time) string { return t.Format("2 January 2006 15:04") },
		"iso":   func(t time.Time) string { return t.Format(time.RFC3339) },
	}
}

// --- View models ---

type base struct {
	Viewer models.Principal
}

type listView struct {
	base
	Group    models.Group
	Page     feed.Page[models.Post]
	PostList template.HTML
}

type profileView struct {
	base
	Profile social.Profile
	Page    feed.Page[models.Post]
}

type postView struct {
	base
	Post       models.Post
	PostsCount int64
	Comments   []models.Comment
	Comment    string
	Errors     map[string][]string
}

type postFormView struct {
	base
	IsEdit bool
	Text   string
	Group  string
	Image  string
	Groups []models.Group
	Errors map[string][]string
}

type authView struct {
	base
	Username string
	Next     string
	Errors   map[string][]string
}

type notFoundView struct {
	base
	Path string
}

func viewer(r *http.Request) base {
	return base{Viewer: middleware.PrincipalFromContext(r.Context())}
}

// render buffers the page so a template failure still yields a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.execute(&buf, page, "base", data); err != nil {
		logg.Error("http/render", "Template execution failed", err, "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "404.html", notFoundView{base: viewer(r), Path: r.URL.Path})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusInternalServerError, "500.html", viewer(r))
}

// fail maps a service error onto the response. Forbidden and validation
// errors are handled by the handlers that can produce them.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, module string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.notFound(w, r)
	case errors.Is(err, apperr.ErrUnauthorized):
		http.Redirect(w, r, middleware.LoginURL(r.URL.RequestURI()), http.StatusFound)
	default:
		logg.Error(module, "Request failed", err, "path", r.URL.Path)
		s.serverError(w, r)
	}
}
