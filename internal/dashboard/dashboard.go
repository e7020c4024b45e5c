// Package dashboard is a minimal read-only HTTP dashboard over the live
// session registry: a session list and, per session, its config summary,
// agent notes, optional post-halt summary, and full evaluation history
// rendered from markdown. Sessions that have been ended (or belong to a
// previous process) remain browsable through the audit trail.
//
// No mutation routes are exposed -- this dashboard is a viewer, not a
// control surface; `start`/`submit`/`end` remain MCP-only operations.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/coderefine/engine/internal/audit"
	"github.com/coderefine/engine/internal/config"
	"github.com/coderefine/engine/internal/registry"
	"github.com/coderefine/engine/internal/summarizer"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server serves the read-only dashboard.
type Server struct {
	registry *registry.Registry
	summ     *summarizer.Summarizer
	audit    *audit.Store
	version  string
	mux      *http.ServeMux
	tmpl     *template.Template
	server   *http.Server
}

// New builds a dashboard Server bound to reg. summ may be nil if no
// summarizer is configured, in which case summaries are simply omitted;
// store may be nil, in which case only live sessions are browsable.
func New(cfg config.Config, reg *registry.Registry, summ *summarizer.Summarizer, store *audit.Store) *Server {
	s := &Server{
		registry: reg,
		summ:     summ,
		audit:    store,
		version:  config.Version,
		mux:      http.NewServeMux(),
	}
	s.parseTemplates()
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.DashboardPort),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server is shut
// down.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) parseTemplates() {
	funcMap := template.FuncMap{
		"fmtScore": func(v float64) string {
			return fmt.Sprintf("%.4f", v)
		},
		"statusClass": func(sum sessionSummary) string {
			if sum.Halted {
				return "status-halted"
			}
			return "status-running"
		},
		"statusText": func(sum sessionSummary) string {
			if sum.Halted {
				return "halted"
			}
			return "running"
		},
		"renderMarkdown": func(md string) template.HTML {
			return renderMarkdown(md)
		},
	}

	s.tmpl = template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"))
}

func renderMarkdown(src string) template.HTML {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src)) //nolint:gosec
	}
	return template.HTML(buf.String()) //nolint:gosec
}

func (s *Server) registerRoutes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleSession)
}

type sessionSummary struct {
	ID        string
	Step      int
	BestScore float64
	EMAScore  float64
	Halted    bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var summaries []sessionSummary
	live := make(map[string]bool)
	for _, id := range s.registry.List() {
		sess := s.registry.Get(id)
		if sess == nil {
			continue
		}
		live[id] = true
		halted := false
		if last := sess.Last(); last != nil {
			halted = last.ShouldHalt
		}
		summaries = append(summaries, sessionSummary{
			ID:        sess.ID,
			Step:      sess.Step(),
			BestScore: sess.BestScore(),
			EMAScore:  sess.EMAScore(),
			Halted:    halted,
		})
	}

	// Audit-recorded sessions that are no longer live stay browsable.
	var past []string
	if s.audit != nil {
		if ids, err := s.audit.ListSessionIDs(); err == nil {
			for _, id := range ids {
				if !live[id] {
					past = append(past, id)
				}
			}
		}
	}

	s.render(w, "index.html", struct {
		Sessions []sessionSummary
		Past     []string
	}{summaries, past})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := s.registry.Get(id)
	if sess == nil {
		s.handleArchivedSession(w, r, id)
		return
	}

	var summaryHTML template.HTML
	if last := sess.Last(); last != nil && last.ShouldHalt && s.summ.Enabled() {
		if text, err := s.summ.Summarize(r.Context(), sess.ZNotes(), sess.History()); err == nil {
			summaryHTML = renderMarkdown(text)
		}
	}

	data := struct {
		Session *registry.Session
		Notes   template.HTML
		Summary template.HTML
	}{
		Session: sess,
		Notes:   renderMarkdown(sess.ZNotes()),
		Summary: summaryHTML,
	}
	s.render(w, "session.html", data)
}

// handleArchivedSession renders a session's history from the audit trail
// when it is no longer in the live registry.
func (s *Server) handleArchivedSession(w http.ResponseWriter, r *http.Request, id string) {
	if s.audit == nil {
		http.NotFound(w, r)
		return
	}
	rows, err := s.audit.ListEvals(id)
	if err != nil || len(rows) == 0 {
		http.NotFound(w, r)
		return
	}
	s.render(w, "archive.html", struct {
		ID   string
		Rows []audit.EvalRow
	}{id, rows})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	layoutData := struct {
		Content template.HTML
		Version string
	}{
		Content: template.HTML(buf.String()), //nolint:gosec
		Version: s.version,
	}
	if err := s.tmpl.ExecuteTemplate(w, "layout.html", layoutData); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
