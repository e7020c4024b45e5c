package candidate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coderefine/engine/internal/fsguard"
)

// Mode is the tagged-union discriminant.
type Mode string

const (
	ModeDiff  Mode = "diff"
	ModePatch Mode = "patch"
	ModeFiles Mode = "files"
)

// FileChange is one entry of a diff-mode changeset.
type FileChange struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// FileContent is one entry of a files-mode changeset.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Candidate is the decoded tagged union. Exactly one of Changes, Patch, or
// Files is populated, selected by Mode.
type Candidate struct {
	Mode    Mode          `json:"mode"`
	Changes []FileChange  `json:"changes,omitempty"`
	Patch   string        `json:"patch,omitempty"`
	Files   []FileContent `json:"files,omitempty"`
}

// Decode validates raw against the candidate schema and unmarshals it into
// a Candidate. Unknown modes are rejected at this boundary.
func Decode(raw json.RawMessage) (Candidate, error) {
	if err := Validate(raw); err != nil {
		return Candidate{}, err
	}
	var c Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	return c, nil
}

// ApplyResult is the outcome of applying a candidate: the set of paths that
// were modified, and a per-change list of error messages (empty on full
// success). A non-empty Errors slice does not necessarily mean
// ModifiedPaths is empty -- partial application is explicit.
type ApplyResult struct {
	ModifiedPaths []string
	Errors        []string
}

// Applier applies a validated candidate to a repository working tree.
// Only the interface the engine consumes -- apply_candidate(repo,
// candidate) -> {modified_paths, errors} -- and its idempotence
// requirements are fixed here; the patcher implementation is not.
type Applier interface {
	Apply(ctx context.Context, repoPath string, c Candidate) ApplyResult
}

// DefaultApplier implements the "files" mode directly (idempotent
// overwrite-by-path) and reports "diff"/"patch" modes as unimplemented
// per-change errors rather than panicking; those patchers are external
// collaborators.
type DefaultApplier struct{}

// Apply writes files mode content under repoPath, refusing any path that
// escapes the repo root. It is idempotent: applying the same candidate
// twice produces the same file contents and the same ModifiedPaths set.
func (DefaultApplier) Apply(ctx context.Context, repoPath string, c Candidate) ApplyResult {
	switch c.Mode {
	case ModeFiles:
		return applyFiles(repoPath, c.Files)
	case ModeDiff:
		errs := make([]string, 0, len(c.Changes))
		for _, ch := range c.Changes {
			errs = append(errs, fmt.Sprintf("%s: diff-mode application is not implemented by this engine", ch.Path))
		}
		return ApplyResult{Errors: errs}
	case ModePatch:
		return ApplyResult{Errors: []string{"patch-mode application is not implemented by this engine"}}
	default:
		return ApplyResult{Errors: []string{fmt.Sprintf("unsupported candidate mode %q", c.Mode)}}
	}
}

func applyFiles(repoPath string, files []FileContent) ApplyResult {
	var res ApplyResult
	for _, f := range files {
		abs, err := fsguard.Resolve(repoPath, f.Path)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: create parent dirs: %v", f.Path, err))
			continue
		}
		if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: write: %v", f.Path, err))
			continue
		}
		res.ModifiedPaths = append(res.ModifiedPaths, f.Path)
	}
	return res
}
