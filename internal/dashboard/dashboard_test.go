package dashboard

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coderefine/engine/internal/audit"
	"github.com/coderefine/engine/internal/config"
	"github.com/coderefine/engine/internal/model"
	"github.com/coderefine/engine/internal/registry"
)

func openTestStore(t *testing.T) *audit.Store {
	t.Helper()
	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestHandleIndexEmpty(t *testing.T) {
	reg := registry.New()
	s := New(config.Config{DashboardPort: 0}, reg, nil, nil)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No sessions yet") {
		t.Fatalf("expected empty-state message, got %q", w.Body.String())
	}
}

func TestHandleIndexListsSessions(t *testing.T) {
	reg := registry.New()
	sess := reg.Create(model.Config{RepoPath: "/tmp/repo"}, registry.ModeCumulative)

	s := New(config.Config{DashboardPort: 0}, reg, nil, nil)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), sess.ID) {
		t.Fatalf("expected session id %s in body, got %q", sess.ID, w.Body.String())
	}
}

func TestHandleSessionNotFound(t *testing.T) {
	reg := registry.New()
	s := New(config.Config{DashboardPort: 0}, reg, nil, nil)

	req := httptest.NewRequest("GET", "/sessions/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleSessionRendersHistory(t *testing.T) {
	reg := registry.New()
	sess := reg.Create(model.Config{RepoPath: "/tmp/repo"}, registry.ModeCumulative)
	sess.Lock()
	sess.AdvanceLocked(model.EvalResult{
		Step:       1,
		Score:      0.8,
		EMAScore:   0.8,
		Feedback:   []string{"✅ Tests passed: 8/10"},
		ShouldHalt: false,
		Reasons:    []string{"continue: step 1, score 0.8000, no_improve_streak 0"},
	}, nil)
	sess.Unlock()

	s := New(config.Config{DashboardPort: 0}, reg, nil, nil)

	req := httptest.NewRequest("GET", "/sessions/"+sess.ID, nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Tests passed: 8/10") {
		t.Fatalf("expected feedback in body, got %q", w.Body.String())
	}
}

func TestHandleIndexListsPastSessionsFromAudit(t *testing.T) {
	reg := registry.New()
	store := openTestStore(t)
	if err := store.RecordEval("ended-session", model.EvalResult{Step: 1, Score: 0.7}); err != nil {
		t.Fatalf("RecordEval: %v", err)
	}

	s := New(config.Config{DashboardPort: 0}, reg, nil, store)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "Past sessions") {
		t.Fatalf("expected past-sessions section, got %q", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ended-session") {
		t.Fatalf("expected audit-recorded session id in body, got %q", w.Body.String())
	}
}

func TestHandleIndexOmitsLiveSessionsFromPast(t *testing.T) {
	reg := registry.New()
	sess := reg.Create(model.Config{RepoPath: "/tmp/repo"}, registry.ModeCumulative)
	store := openTestStore(t)
	if err := store.RecordEval(sess.ID, model.EvalResult{Step: 1, Score: 0.7}); err != nil {
		t.Fatalf("RecordEval: %v", err)
	}

	s := New(config.Config{DashboardPort: 0}, reg, nil, store)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), "Past sessions") {
		t.Fatalf("expected no past-sessions section when the session is live, got %q", w.Body.String())
	}
}

func TestHandleSessionFallsBackToArchive(t *testing.T) {
	reg := registry.New()
	store := openTestStore(t)
	if err := store.RecordEval("ended-session", model.EvalResult{
		Step:       2,
		Score:      0.9,
		EMAScore:   0.8,
		ShouldHalt: true,
		Feedback:   []string{"✅ Tests passed: 10/10"},
		Reasons:    []string{"success: score 0.9000 >= pass_threshold 0.9000 with passing tests at step 2"},
	}); err != nil {
		t.Fatalf("RecordEval: %v", err)
	}

	s := New(config.Config{DashboardPort: 0}, reg, nil, store)

	req := httptest.NewRequest("GET", "/sessions/ended-session", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "archived") {
		t.Fatalf("expected archived marker, got %q", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Tests passed: 10/10") {
		t.Fatalf("expected recorded feedback, got %q", w.Body.String())
	}
}
