// Package preflight implements a one-shot, non-fatal validation step run
// before a session begins accepting submissions: the repo path exists, the
// configured probe commands are resolvable on PATH, and (optionally) a
// single data-quality and test run succeeds so the caller has a baseline
// reading before submitting any candidate. Failures are reported, not
// propagated as a hard error, so the caller can still start the session and
// see exactly what is missing.
package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/coderefine/engine/internal/model"
	"github.com/coderefine/engine/internal/parse"
)

// CmdRunner is the subset of runner.Runner used by preflight checks.
type CmdRunner interface {
	Run(ctx context.Context, cmd, cwd string, timeoutSec int, env map[string]string) model.CommandResult
	CheckAvailable(cmd string) bool
}

// Check is one named preflight finding.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report is the full set of preflight findings for one session config. It
// never itself represents a hard failure; callers decide whether any
// individual check's failure should block starting a session.
type Report struct {
	Checks []Check
}

// AllOK reports whether every check passed.
func (r Report) AllOK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Run performs the preflight checks for cfg: repo path existence, probe
// command availability, and (if configured) one baseline data-quality and
// test invocation. Nothing here mutates session state; the caller decides
// what to do with the Report.
func Run(ctx context.Context, r CmdRunner, cfg model.Config) Report {
	var rep Report

	rep.Checks = append(rep.Checks, checkRepoPath(cfg.RepoPath))

	for _, probe := range []struct {
		name, cmd string
	}{
		{"data_quality_cmd", cfg.DataQualityCmd},
		{"test_cmd", cfg.TestCmd},
		{"lint_cmd", cfg.LintCmd},
		{"perf_cmd", cfg.PerfCmd},
	} {
		if probe.cmd == "" {
			continue
		}
		rep.Checks = append(rep.Checks, checkAvailable(r, probe.name, probe.cmd))
	}

	if cfg.DataQualityCmd != "" {
		rep.Checks = append(rep.Checks, baselineRun(ctx, r, "data_quality_baseline", cfg.DataQualityCmd, cfg.RepoPath, cfg.TimeoutSec))
	}
	if cfg.TestCmd != "" {
		rep.Checks = append(rep.Checks, baselineTestRun(ctx, r, cfg))
	}

	return rep
}

func checkRepoPath(path string) Check {
	if path == "" {
		return Check{Name: "repo_path", OK: false, Detail: "repo_path is empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: "repo_path", OK: false, Detail: "repo_path does not exist: " + err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "repo_path", OK: false, Detail: "repo_path is not a directory"}
	}
	return Check{Name: "repo_path", OK: true}
}

func checkAvailable(r CmdRunner, name, cmd string) Check {
	executable := strings.Fields(cmd)
	if len(executable) == 0 {
		return Check{Name: name, OK: false, Detail: "empty command"}
	}
	if r.CheckAvailable(executable[0]) {
		return Check{Name: name, OK: true}
	}
	return Check{Name: name, OK: false, Detail: executable[0] + " not found on PATH"}
}

func baselineRun(ctx context.Context, r CmdRunner, name, cmd, cwd string, timeoutSec int) Check {
	cr := r.Run(ctx, cmd, cwd, timeoutSec, nil)
	output := strings.TrimSpace(cr.Stdout)
	if output == "" {
		output = strings.TrimSpace(cr.Stderr)
	}
	return Check{Name: name, OK: cr.OK, Detail: truncate(output, 200)}
}

func baselineTestRun(ctx context.Context, r CmdRunner, cfg model.Config) Check {
	cr := r.Run(ctx, cfg.TestCmd, cfg.RepoPath, cfg.TimeoutSec, nil)
	tc := parse.ParseTestOutput(cr.Stdout+"\n"+cr.Stderr, "pytest")
	if !tc.Present {
		return Check{Name: "test_baseline", OK: false, Detail: "could not parse baseline test output"}
	}
	detail := fmt.Sprintf("passed=%d failed=%d total=%d", tc.Value.Passed, tc.Value.Failed, tc.Value.Total)
	return Check{Name: "test_baseline", OK: cr.OK && tc.Value.Failed == 0, Detail: detail}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
