// Package scoring combines probe signals into a weighted scalar score,
// updates the exponential moving average, and evaluates the halting
// predicates in priority order.
package scoring

import (
	"fmt"

	"github.com/coderefine/engine/internal/model"
)

// Signals is the set of per-probe observations for one iteration. Each
// field is an explicit present/absent sum type.
type Signals struct {
	DataQuality model.OptionalBool
	Tests       model.OptionalTestCounts
	Lint        model.OptionalBool
	Perf        model.OptionalPerf
}

// Score computes the weighted aggregate score in [0,1] from the present
// signals, plus the best_perf value known so far. It returns only the
// score -- best_perf is updated by the caller (the evaluation pipeline),
// not here; Score only reads it to compute s_perf.
//
// Per-signal scores are combined as a weighted average over present
// signals only; score == 0 when no signal is present.
func Score(s Signals, w model.Weights, bestPerf *float64) float64 {
	var sumW, sumWS float64

	if s.DataQuality.Present {
		v := 0.0
		if s.DataQuality.Value {
			v = 1.0
		}
		sumW += w.DataQuality
		sumWS += w.DataQuality * v
	}

	if s.Tests.Present && s.Tests.Value.Total > 0 {
		v := float64(s.Tests.Value.Passed) / float64(s.Tests.Value.Total)
		sumW += w.Test
		sumWS += w.Test * v
	}

	if s.Lint.Present {
		v := 0.0
		if s.Lint.Value {
			v = 1.0
		}
		sumW += w.Lint
		sumWS += w.Lint * v
	}

	if s.Perf.Present && s.Perf.Value.Value > 0 {
		v := 1.0
		if bestPerf != nil && *bestPerf > 0 {
			v = *bestPerf / s.Perf.Value.Value
			if v > 1.0 {
				v = 1.0
			}
		}
		sumW += w.Perf
		sumWS += w.Perf * v
	}

	if sumW == 0 {
		return 0
	}
	return sumWS / sumW
}

// UpdateEMA computes the new exponential moving average. step is the
// iteration number after increment (1-indexed); on step 1 the EMA is
// initialized to the current score.
//
// ema_1 == score_1, ema_n = alpha*score + (1-alpha)*ema_{n-1} thereafter.
func UpdateEMA(step int, score, prevEMA, alpha float64) float64 {
	if step <= 1 {
		return score
	}
	return alpha*score + (1-alpha)*prevEMA
}

// HaltConfig mirrors model.HaltConfig; kept as a type alias so call sites
// in this package read naturally without importing model twice.
type HaltConfig = model.HaltConfig

// Decision is the outcome of evaluating the halt predicates.
type Decision struct {
	ShouldHalt bool
	Reasons    []string
}

// Reason strings returned to the caller with each halt decision.
const (
	reasonSuccess  = "success: score %.4f >= pass_threshold %.4f with passing tests at step %d"
	reasonPlateau  = "plateau: no improvement for %d consecutive steps (patience %d)"
	reasonLimit    = "limit: reached max_steps %d"
	reasonContinue = "continue: step %d, score %.4f, no_improve_streak %d"
)

// ShouldHalt evaluates the halt predicates in priority order: success,
// plateau, limit. The first matching rule wins; otherwise the loop
// continues.
//
// tests_passed is true iff tests are present and failed == 0.
func ShouldHalt(step int, score, ema float64, noImproveStreak int, testsPassed bool, cfg HaltConfig) Decision {
	if step >= cfg.MinSteps && testsPassed && score >= cfg.PassThreshold {
		return Decision{ShouldHalt: true, Reasons: []string{fmt.Sprintf(reasonSuccess, score, cfg.PassThreshold, step)}}
	}
	if noImproveStreak >= cfg.PatienceNoImprove {
		return Decision{ShouldHalt: true, Reasons: []string{fmt.Sprintf(reasonPlateau, noImproveStreak, cfg.PatienceNoImprove)}}
	}
	if step >= cfg.MaxSteps {
		return Decision{ShouldHalt: true, Reasons: []string{fmt.Sprintf(reasonLimit, cfg.MaxSteps)}}
	}
	return Decision{ShouldHalt: false, Reasons: []string{fmt.Sprintf(reasonContinue, step, score, noImproveStreak)}}
}
