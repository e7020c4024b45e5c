package dispatch

import (
	"encoding/json"

	"github.com/coderefine/engine/internal/config"
	"github.com/coderefine/engine/internal/model"
)

// --- start ---

type weightsArgs struct {
	DataQual *float64 `json:"dataQual"`
	Test     *float64 `json:"test"`
	Lint     *float64 `json:"lint"`
	Perf     *float64 `json:"perf"`
}

type haltArgs struct {
	Max       int     `json:"max"`
	Threshold float64 `json:"threshold"`
	Patience  int     `json:"patience"`
	Min       *int    `json:"min"`
}

type startArgs struct {
	Repo      string      `json:"repo"`
	DataQual  string      `json:"dataQual"`
	Test      string      `json:"test"`
	Lint      string      `json:"lint"`
	Bench     string      `json:"bench"`
	Timeout   int         `json:"timeout"`
	Weights   weightsArgs `json:"weights"`
	Halt      haltArgs    `json:"halt"`
	EMA       *float64    `json:"ema"`
	Notes     string      `json:"notes"`
	Preflight bool        `json:"preflight"`
}

// toConfig translates the short-name start arguments into the engine's
// canonical model.Config. An omitted timeout or EMA alpha falls back to the
// process-wide defaults (the --default-* flags), then to the built-in
// constants; omitted weights and min steps take the built-in defaults.
func (a startArgs) toConfig(defaults config.Config) model.Config {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaults.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = model.DefaultTimeoutSec
	}

	w := model.DefaultWeights()
	if a.Weights.DataQual != nil {
		w.DataQuality = *a.Weights.DataQual
	}
	if a.Weights.Test != nil {
		w.Test = *a.Weights.Test
	}
	if a.Weights.Lint != nil {
		w.Lint = *a.Weights.Lint
	}
	if a.Weights.Perf != nil {
		w.Perf = *a.Weights.Perf
	}

	minSteps := model.DefaultHaltConfig().MinSteps
	if a.Halt.Min != nil {
		minSteps = *a.Halt.Min
	}

	alpha := defaults.DefaultEMAAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = model.DefaultEMAAlpha
	}
	if a.EMA != nil {
		alpha = *a.EMA
	}

	return model.Config{
		RepoPath:       a.Repo,
		DataQualityCmd: a.DataQual,
		TestCmd:        a.Test,
		LintCmd:        a.Lint,
		PerfCmd:        a.Bench,
		TimeoutSec:     timeout,
		Weights:        w,
		Halt: model.HaltConfig{
			MaxSteps:          a.Halt.Max,
			PassThreshold:     a.Halt.Threshold,
			PatienceNoImprove: a.Halt.Patience,
			MinSteps:          minSteps,
		},
		EMAAlpha: alpha,
	}
}

type configResponse struct {
	RepoPath       string           `json:"repoPath"`
	DataQualityCmd string           `json:"dataQualityCmd,omitempty"`
	TestCmd        string           `json:"testCmd,omitempty"`
	LintCmd        string           `json:"lintCmd,omitempty"`
	PerfCmd        string           `json:"perfCmd,omitempty"`
	TimeoutSec     int              `json:"timeoutSec"`
	Weights        model.Weights    `json:"weights"`
	Halt           model.HaltConfig `json:"halt"`
	EMAAlpha       float64          `json:"emaAlpha"`
}

func toConfigResponse(cfg model.Config) configResponse {
	return configResponse{
		RepoPath:       cfg.RepoPath,
		DataQualityCmd: cfg.DataQualityCmd,
		TestCmd:        cfg.TestCmd,
		LintCmd:        cfg.LintCmd,
		PerfCmd:        cfg.PerfCmd,
		TimeoutSec:     cfg.TimeoutSec,
		Weights:        cfg.Weights,
		Halt:           cfg.Halt,
		EMAAlpha:       cfg.EMAAlpha,
	}
}

type preflightCheckResponse struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type startResponse struct {
	SessionID string                   `json:"sessionId"`
	Config    configResponse           `json:"config"`
	Preflight []preflightCheckResponse `json:"preflight,omitempty"`
}

// --- submit ---

type submitArgs struct {
	SID       string          `json:"sid"`
	Candidate json.RawMessage `json:"candidate"`
	Reason    string          `json:"reason"`
}

type testsResponse struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

type perfResponse struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// evalResultResponse is the camelCase wire shape of model.EvalResult.
type evalResultResponse struct {
	Step          int            `json:"step"`
	Score         float64        `json:"score"`
	EMAScore      float64        `json:"emaScore"`
	OKDataQuality *bool          `json:"okDataQuality"`
	OKLint        *bool          `json:"okLint"`
	Tests         *testsResponse `json:"tests"`
	Perf          *perfResponse  `json:"perf"`
	Feedback      []string       `json:"feedback"`
	ShouldHalt    bool           `json:"shouldHalt"`
	Reasons       []string       `json:"reasons"`
}

func toEvalResultResponse(r model.EvalResult) evalResultResponse {
	resp := evalResultResponse{
		Step:       r.Step,
		Score:      r.Score,
		EMAScore:   r.EMAScore,
		Feedback:   r.Feedback,
		ShouldHalt: r.ShouldHalt,
		Reasons:    r.Reasons,
	}
	if r.OKDataQuality.Present {
		v := r.OKDataQuality.Value
		resp.OKDataQuality = &v
	}
	if r.OKLint.Present {
		v := r.OKLint.Value
		resp.OKLint = &v
	}
	if r.Tests.Present {
		resp.Tests = &testsResponse{Passed: r.Tests.Value.Passed, Failed: r.Tests.Value.Failed, Total: r.Tests.Value.Total}
	}
	if r.Perf.Present {
		resp.Perf = &perfResponse{Value: r.Perf.Value.Value, Unit: r.Perf.Value.Unit}
	}
	return resp
}

type submitResponse struct {
	SessionID     string             `json:"sessionId"`
	ModifiedPaths []string           `json:"modifiedPaths,omitempty"`
	ApplyErrors   []string           `json:"applyErrors,omitempty"`
	Eval          evalResultResponse `json:"eval"`
}

// --- state ---

type stateArgs struct {
	SID string `json:"sid"`
}

type stateResponse struct {
	SessionID       string              `json:"sessionId"`
	Step            int                 `json:"step"`
	EMAScore        float64             `json:"emaScore"`
	BestScore       float64             `json:"bestScore"`
	NoImproveStreak int                 `json:"noImproveStreak"`
	Last            *evalResultResponse `json:"last"`
	ZNotes          string              `json:"zNotes,omitempty"`
}

// --- halt ---

type haltResponse struct {
	ShouldHalt bool     `json:"shouldHalt"`
	Reasons    []string `json:"reasons"`
}

// --- end ---

type endArgs struct {
	SID string `json:"sid"`
}

type endResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// --- read ---

type readArgs struct {
	SID   string   `json:"sid"`
	Paths []string `json:"paths"`
}

type fileReadResponse struct {
	Path         string `json:"path"`
	Content      string `json:"content,omitempty"`
	LineCount    int    `json:"lineCount,omitempty"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	Error        string `json:"error,omitempty"`
}

type readResponse struct {
	SessionID string             `json:"sessionId"`
	Files     []fileReadResponse `json:"files"`
}
