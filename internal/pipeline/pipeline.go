// Package pipeline implements the evaluation pipeline: given a session, run
// all configured probes in fixed order, feed their output to the matching
// parser, compute the weighted score and EMA, decide whether to halt, and
// publish the updated session state atomically. Feedback strings accumulate
// along the way; state is written once at the end.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/coderefine/engine/internal/model"
	"github.com/coderefine/engine/internal/parse"
	"github.com/coderefine/engine/internal/redact"
	"github.com/coderefine/engine/internal/registry"
	"github.com/coderefine/engine/internal/scoring"
)

// ProbeRunner is the subset of runner.Runner the pipeline depends on,
// narrowed to an interface so tests can substitute a fake.
type ProbeRunner interface {
	Run(ctx context.Context, cmd, cwd string, timeoutSec int, env map[string]string) model.CommandResult
}

// CommandObserver receives every probe invocation's redacted outcome, keyed
// by session and step. The audit store satisfies this; a nil Observer
// disables per-command recording.
type CommandObserver interface {
	RecordCommand(sessionID string, step int, probe string, cr model.CommandResult) error
}

// Pipeline drives one evaluation for a session.
type Pipeline struct {
	Runner   ProbeRunner
	Redactor *redact.Filter
	Observer CommandObserver
}

// New builds a Pipeline. redactor may be nil, in which case output is
// stored unredacted.
func New(r ProbeRunner, redactor *redact.Filter) *Pipeline {
	return &Pipeline{Runner: r, Redactor: redactor}
}

func (p *Pipeline) redact(s string) string {
	if p.Redactor == nil {
		return s
	}
	return p.Redactor.Redact(s)
}

// observe hands one probe's outcome to the Observer with credentials
// scrubbed. The audit trail is strictly secondary to in-memory state, so a
// recording failure never unwinds the iteration.
func (p *Pipeline) observe(sessionID string, step int, probe string, cr model.CommandResult) {
	if p.Observer == nil {
		return
	}
	cr.Stdout = p.redact(cr.Stdout)
	cr.Stderr = p.redact(cr.Stderr)
	_ = p.Observer.RecordCommand(sessionID, step, probe, cr)
}

// Run executes one full iteration against sess: applies the four probes in
// fixed order (data-quality, tests, lint, performance), scores the result,
// updates EMA/best_score/no_improve_streak/best_perf, computes the halt
// decision, and appends the EvalResult to history. The whole iteration is
// serialized per session via Session.RunExclusive; the final state
// publication happens under Session.Lock so concurrent state/halt reads
// never observe a partial update.
func (p *Pipeline) Run(ctx context.Context, sess *registry.Session) (*model.EvalResult, error) {
	var result model.EvalResult
	err := sess.RunExclusive(func() error {
		cfg := sess.Config
		// Evaluations are serialized by RunExclusive, so the step this
		// iteration will publish is stable for the whole probe sequence.
		newStep := sess.Step() + 1
		var signals scoring.Signals
		var feedback []string

		if cfg.DataQualityCmd != "" {
			cr := p.Runner.Run(ctx, cfg.DataQualityCmd, cfg.RepoPath, cfg.TimeoutSec, nil)
			p.observe(sess.ID, newStep, "data_quality", cr)
			signals.DataQuality = model.Present(cr.OK)
			if cr.OK {
				feedback = append(feedback, "✅ Data quality passed")
			} else {
				feedback = append(feedback, fmt.Sprintf("❌ Data quality failed: %s", p.redact(truncate(cr.Stderr, 500))))
			}
		}

		if cfg.TestCmd != "" {
			cr := p.Runner.Run(ctx, cfg.TestCmd, cfg.RepoPath, cfg.TimeoutSec, nil)
			p.observe(sess.ID, newStep, "test", cr)
			combined := cr.Stdout + "\n" + cr.Stderr
			tc := parse.ParseTestOutput(combined, "pytest")
			signals.Tests = tc
			if tc.Present {
				if tc.Value.Failed == 0 {
					feedback = append(feedback, fmt.Sprintf("✅ Tests passed: %d/%d", tc.Value.Passed, tc.Value.Total))
				} else {
					feedback = append(feedback, fmt.Sprintf("❌ Tests failed: %d/%d", tc.Value.Failed, tc.Value.Total))
				}
			} else {
				feedback = append(feedback, "⚠️ Could not parse test output")
			}
		}

		if cfg.LintCmd != "" {
			cr := p.Runner.Run(ctx, cfg.LintCmd, cfg.RepoPath, cfg.TimeoutSec, nil)
			p.observe(sess.ID, newStep, "lint", cr)
			signals.Lint = model.Present(cr.OK)
			if cr.OK {
				feedback = append(feedback, "✅ Lint passed")
			} else {
				feedback = append(feedback, fmt.Sprintf("❌ Lint failed:\n%s", p.redact(tail(cr.Stderr, 5))))
			}
		}

		var newBestPerf *float64
		if cfg.PerfCmd != "" {
			cr := p.Runner.Run(ctx, cfg.PerfCmd, cfg.RepoPath, cfg.TimeoutSec, nil)
			p.observe(sess.ID, newStep, "perf", cr)
			pm := parse.ParsePerformanceMetric(cr.Stdout + "\n" + cr.Stderr)
			signals.Perf = pm
			if pm.Present {
				prior := sess.BestPerf()
				if prior == nil || pm.Value.Value < *prior {
					v := pm.Value.Value
					newBestPerf = &v
					if prior == nil {
						feedback = append(feedback, fmt.Sprintf("⏱ Performance baseline: %.4fs", pm.Value.Value))
					} else {
						feedback = append(feedback, fmt.Sprintf("⏱ Performance improved: %.4fs (was %.4fs)", pm.Value.Value, *prior))
					}
				} else {
					feedback = append(feedback, fmt.Sprintf("⏱ Performance regressed: %.4fs (best %.4fs)", pm.Value.Value, *prior))
				}
			} else {
				feedback = append(feedback, "⚠️ Could not parse performance output")
			}
		}

		bestPerfForScoring := sess.BestPerf()
		if newBestPerf != nil {
			bestPerfForScoring = newBestPerf
		}
		score := scoring.Score(signals, cfg.Weights, bestPerfForScoring)

		sess.Lock()
		defer sess.Unlock()

		alpha := cfg.EMAAlpha
		ema := scoring.UpdateEMA(newStep, score, sess.EMAScoreLocked(), alpha)

		// no_improve_streak as it will read after Advance: Advance itself
		// recomputes best_score/streak, but the halt decision needs the
		// *post*-update streak, so predict it here using the same rule
		// Advance uses (strict improvement resets to 0).
		prospectiveStreak := sess.NoImproveStreakLocked()
		if score > sess.BestScoreLocked() {
			prospectiveStreak = 0
		} else {
			prospectiveStreak++
		}

		testsPassed := signals.Tests.Present && signals.Tests.Value.Failed == 0
		decision := scoring.ShouldHalt(newStep, score, ema, prospectiveStreak, testsPassed, cfg.Halt)

		result = model.EvalResult{
			Step:          newStep,
			Score:         score,
			EMAScore:      ema,
			OKDataQuality: signals.DataQuality,
			OKLint:        signals.Lint,
			Tests:         signals.Tests,
			Perf:          signals.Perf,
			Feedback:      feedback,
			ShouldHalt:    decision.ShouldHalt,
			Reasons:       decision.Reasons,
		}

		sess.AdvanceLocked(result, newBestPerf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
