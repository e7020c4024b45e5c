// Package registry is the process-wide, concurrency-safe store of live
// sessions. It owns session state; callers are handed a shared *Session
// whose mutations are serialized by the session's own lock.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderefine/engine/internal/model"
)

// Mode selects whether candidate modifications accumulate across
// iterations (cumulative) or are expected to be reapplied fresh each time
// (snapshot).
type Mode string

const (
	ModeCumulative Mode = "cumulative"
	ModeSnapshot   Mode = "snapshot"
)

// Session is the central stateful entity: immutable Config plus mutable
// iteration state, guarded by its own mutex so that at most one evaluation
// runs per session at a time.
type Session struct {
	ID        string
	CreatedAt time.Time
	Config    model.Config
	Mode      Mode

	// evalMu serializes whole evaluations: at most one evaluation pipeline
	// runs per session at any instant. It is held for the duration of a
	// submit, including blocking subprocess I/O. mu below is held only for
	// the brief state read/write itself, so state/halt reads never block
	// behind a slow probe.
	evalMu sync.Mutex

	mu              sync.Mutex
	step            int
	bestScore       float64
	emaScore        float64
	noImproveStreak int
	bestPerf        *float64
	history         []model.EvalResult
	zNotes          string
}

// Lock/Unlock expose the session's serialization point to callers that
// need to read-modify-write multiple fields atomically (the evaluation
// pipeline). Reads of a single field should use the self-locking accessors
// (Step, BestScore, EMAScore, Last, History, ...) instead of locking
// directly.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// RunExclusive serializes whole evaluations for this session: at most one
// call to fn across all callers runs at a time. fn typically runs the full
// probe pipeline and then calls Lock/Advance/Unlock to publish the result.
func (s *Session) RunExclusive(fn func() error) error {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	return fn()
}

// TryRunExclusive attempts RunExclusive without blocking, reporting false
// if another evaluation is already in flight for this session.
func (s *Session) TryRunExclusive(fn func() error) (ran bool, err error) {
	if !s.evalMu.TryLock() {
		return false, nil
	}
	defer s.evalMu.Unlock()
	return true, fn()
}

// Step returns the current step count.
func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// BestScore returns the best score observed so far.
func (s *Session) BestScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestScore
}

// EMAScore returns the current EMA.
func (s *Session) EMAScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emaScore
}

// NoImproveStreak returns the current no-improvement streak.
func (s *Session) NoImproveStreak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noImproveStreak
}

// BestPerf returns the best perf value seen, or nil if none.
func (s *Session) BestPerf() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bestPerf == nil {
		return nil
	}
	v := *s.bestPerf
	return &v
}

// Last returns the most recent EvalResult, or nil if history is empty.
func (s *Session) Last() *model.EvalResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	r := s.history[len(s.history)-1]
	return &r
}

// History returns a copy of the full evaluation history.
func (s *Session) History() []model.EvalResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EvalResult, len(s.history))
	copy(out, s.history)
	return out
}

// ZNotes returns the agent-supplied reasoning string.
func (s *Session) ZNotes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zNotes
}

// SetZNotes replaces the agent-supplied reasoning string.
func (s *Session) SetZNotes(notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zNotes = notes
}

// Advance performs the atomic per-iteration state update: it must be
// called while the caller already holds s.mu (via Lock/Unlock) so that the
// whole read-modify-write sequence -- including
// the halt decision, which depends on the updated counters -- is one
// critical section. newBestPerf is nil when perf was absent or not an
// improvement this iteration.
func (s *Session) Advance(result model.EvalResult, newBestPerf *float64) {
	s.AdvanceLocked(result, newBestPerf)
}

// AdvanceLocked is Advance under a name that makes the locking requirement
// explicit at call sites that already hold s.mu via Lock(). Advance is kept
// as an alias for callers that read more naturally without "Locked".
func (s *Session) AdvanceLocked(result model.EvalResult, newBestPerf *float64) {
	s.step = result.Step
	s.emaScore = result.EMAScore
	if result.Score > s.bestScore {
		s.bestScore = result.Score
		s.noImproveStreak = 0
	} else {
		s.noImproveStreak++
	}
	if newBestPerf != nil {
		s.bestPerf = newBestPerf
	}
	s.history = append(s.history, result)
}

// StepLocked, BestScoreLocked, EMAScoreLocked, and NoImproveStreakLocked
// read the corresponding fields directly without locking. Callers must
// already hold s.mu (via Lock()); they exist so a caller computing the next
// EvalResult can read the current counters and then call AdvanceLocked
// within a single critical section, rather than reacquiring mu per field.
func (s *Session) StepLocked() int            { return s.step }
func (s *Session) BestScoreLocked() float64   { return s.bestScore }
func (s *Session) EMAScoreLocked() float64    { return s.emaScore }
func (s *Session) NoImproveStreakLocked() int { return s.noImproveStreak }

// Registry is the process-wide map from session id to *Session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create allocates a fresh session id and stores a new Session.
func (r *Registry) Create(cfg model.Config, mode Mode) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Config:    cfg,
		Mode:      mode,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

// Get returns the session for id, or nil if not found.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Delete removes the session for id, reporting whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// List returns the ids of all live sessions.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
