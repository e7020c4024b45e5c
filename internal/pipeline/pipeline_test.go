package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/coderefine/engine/internal/model"
	"github.com/coderefine/engine/internal/redact"
	"github.com/coderefine/engine/internal/registry"
)

// fakeRunner returns canned CommandResults keyed by the exact command
// string, so tests can script each probe independently of the others.
type fakeRunner struct {
	byCmd map[string]model.CommandResult
}

func (f *fakeRunner) Run(ctx context.Context, cmd, cwd string, timeoutSec int, env map[string]string) model.CommandResult {
	if r, ok := f.byCmd[cmd]; ok {
		return r
	}
	return model.CommandResult{OK: false, ExitCode: -1, Stderr: "unscripted command: " + cmd}
}

func newSession(cfg model.Config) *registry.Session {
	r := registry.New()
	return r.Create(cfg, registry.ModeCumulative)
}

func TestPipelineRunAppendsHistoryAndAdvancesStep(t *testing.T) {
	cfg := model.Config{
		RepoPath: "/repo",
		TestCmd:  "pytest",
		Weights:  model.Weights{Test: 1.0},
		Halt:     model.HaltConfig{MaxSteps: 10, PassThreshold: 0.99, PatienceNoImprove: 5, MinSteps: 1},
		EMAAlpha: 0.3,
	}
	sess := newSession(cfg)
	fr := &fakeRunner{byCmd: map[string]model.CommandResult{
		"pytest": {OK: true, Stdout: "5 passed in 1.2s", ExitCode: 0},
	}}
	p := New(fr, nil)

	result, err := p.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Step != 1 {
		t.Fatalf("expected step 1, got %d", result.Step)
	}
	if !result.Tests.Present || result.Tests.Value.Passed != 5 {
		t.Fatalf("expected tests parsed, got %+v", result.Tests)
	}
	if result.Score != 1.0 {
		t.Fatalf("expected score 1.0 for all-passing tests, got %v", result.Score)
	}
	if result.EMAScore != result.Score {
		t.Fatalf("expected first-step EMA to equal score, got ema=%v score=%v", result.EMAScore, result.Score)
	}
	if sess.Step() != 1 || sess.BestScore() != 1.0 {
		t.Fatalf("expected session advanced, got step=%d best=%v", sess.Step(), sess.BestScore())
	}
	if len(sess.History()) != 1 {
		t.Fatalf("expected one history entry, got %d", len(sess.History()))
	}
}

func TestPipelineHaltsOnSuccess(t *testing.T) {
	cfg := model.Config{
		RepoPath: "/repo",
		TestCmd:  "pytest",
		Weights:  model.Weights{Test: 1.0},
		Halt:     model.HaltConfig{MaxSteps: 10, PassThreshold: 0.9, PatienceNoImprove: 5, MinSteps: 1},
		EMAAlpha: 0.3,
	}
	sess := newSession(cfg)
	fr := &fakeRunner{byCmd: map[string]model.CommandResult{
		"pytest": {OK: true, Stdout: "10 passed in 0.5s", ExitCode: 0},
	}}
	p := New(fr, nil)

	result, err := p.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ShouldHalt {
		t.Fatalf("expected halt on first fully-passing step, got %+v", result)
	}
}

func TestPipelineTracksNoImproveStreak(t *testing.T) {
	cfg := model.Config{
		RepoPath: "/repo",
		TestCmd:  "pytest",
		Weights:  model.Weights{Test: 1.0},
		Halt:     model.HaltConfig{MaxSteps: 10, PassThreshold: 1.1, PatienceNoImprove: 5, MinSteps: 1},
		EMAAlpha: 0.3,
	}
	sess := newSession(cfg)
	fr := &fakeRunner{byCmd: map[string]model.CommandResult{
		"pytest": {OK: true, Stdout: "5 passed, 5 failed"},
	}}
	p := New(fr, nil)

	if _, err := p.Run(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.NoImproveStreak() != 0 {
		t.Fatalf("expected first step to reset streak, got %d", sess.NoImproveStreak())
	}
	if _, err := p.Run(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.NoImproveStreak() != 1 {
		t.Fatalf("expected second identical-score step to increment streak, got %d", sess.NoImproveStreak())
	}
}

func TestPipelineTracksBestPerfAcrossSteps(t *testing.T) {
	cfg := model.Config{
		RepoPath: "/repo",
		PerfCmd:  "bench",
		Weights:  model.Weights{Perf: 1.0},
		Halt:     model.HaltConfig{MaxSteps: 10, PassThreshold: 1.1, PatienceNoImprove: 5, MinSteps: 1},
		EMAAlpha: 0.3,
	}
	sess := newSession(cfg)
	fr := &fakeRunner{byCmd: map[string]model.CommandResult{
		"bench": {OK: true, Stdout: "elapsed: 2.0s"},
	}}
	p := New(fr, nil)
	if _, err := p.Run(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sess.BestPerf(); got == nil || *got != 2.0 {
		t.Fatalf("expected best perf 2.0, got %v", got)
	}

	fr.byCmd["bench"] = model.CommandResult{OK: true, Stdout: "elapsed: 1.0s"}
	if _, err := p.Run(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sess.BestPerf(); got == nil || *got != 1.0 {
		t.Fatalf("expected best perf improved to 1.0, got %v", got)
	}

	fr.byCmd["bench"] = model.CommandResult{OK: true, Stdout: "elapsed: 3.0s"}
	if _, err := p.Run(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sess.BestPerf(); got == nil || *got != 1.0 {
		t.Fatalf("expected best perf unchanged on regression, got %v", got)
	}
}

type recordedCommand struct {
	sessionID string
	step      int
	probe     string
	cr        model.CommandResult
}

// recordingObserver captures every observed probe outcome in order.
type recordingObserver struct {
	rows []recordedCommand
}

func (o *recordingObserver) RecordCommand(sessionID string, step int, probe string, cr model.CommandResult) error {
	o.rows = append(o.rows, recordedCommand{sessionID, step, probe, cr})
	return nil
}

func TestPipelineObserverReceivesEachProbe(t *testing.T) {
	cfg := model.Config{
		RepoPath: "/repo",
		TestCmd:  "pytest",
		LintCmd:  "ruff check .",
		Weights:  model.Weights{Test: 0.5, Lint: 0.5},
		Halt:     model.HaltConfig{MaxSteps: 10, PassThreshold: 1.1, PatienceNoImprove: 5, MinSteps: 1},
		EMAAlpha: 0.3,
	}
	sess := newSession(cfg)
	fr := &fakeRunner{byCmd: map[string]model.CommandResult{
		"pytest":       {OK: true, Stdout: "3 passed"},
		"ruff check .": {OK: false, ExitCode: 1, Stderr: "E501 line too long"},
	}}
	obs := &recordingObserver{}
	p := New(fr, nil)
	p.Observer = obs

	if _, err := p.Run(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(obs.rows) != 2 {
		t.Fatalf("expected 2 observed commands, got %d", len(obs.rows))
	}
	if obs.rows[0].probe != "test" || obs.rows[1].probe != "lint" {
		t.Fatalf("expected test then lint, got %+v", obs.rows)
	}
	for _, row := range obs.rows {
		if row.sessionID != sess.ID || row.step != 1 {
			t.Fatalf("expected session %s step 1, got %+v", sess.ID, row)
		}
	}
}

func TestPipelineRedactsCapturedOutput(t *testing.T) {
	t.Setenv("CODEREFINE_CRED_TOKEN", "supersecret")
	cfg := model.Config{
		RepoPath:       "/repo",
		DataQualityCmd: "dq",
		Weights:        model.Weights{DataQuality: 1.0},
		Halt:           model.HaltConfig{MaxSteps: 10, PassThreshold: 1.1, PatienceNoImprove: 5, MinSteps: 1},
		EMAAlpha:       0.3,
	}
	sess := newSession(cfg)
	fr := &fakeRunner{byCmd: map[string]model.CommandResult{
		"dq": {OK: false, Stderr: "auth failed using token supersecret"},
	}}
	p := New(fr, redact.New())

	result, err := p.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range result.Feedback {
		if strings.Contains(line, "supersecret") {
			t.Fatalf("expected secret to be redacted from feedback, got %q", line)
		}
	}
}
