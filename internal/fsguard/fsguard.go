// Package fsguard resolves a relative path against a session's repo_path,
// rejecting absolute paths and traversal outside the root.
package fsguard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolve joins rel onto repoPath and verifies the result does not escape
// repoPath. It returns the cleaned absolute path on success.
func Resolve(repoPath, rel string) (string, error) {
	if strings.Contains(rel, "\x00") {
		return "", fmt.Errorf("path %q contains a NUL byte", rel)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative to the repo root", rel)
	}

	root, err := filepath.Abs(repoPath)
	if err != nil {
		return "", fmt.Errorf("resolve repo root: %w", err)
	}
	root = filepath.Clean(root)

	joined := filepath.Clean(filepath.Join(root, rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes repo root %q", rel, repoPath)
	}
	return joined, nil
}
