package summarizer

import (
	"os"
	"strings"
	"testing"

	"github.com/coderefine/engine/internal/model"
)

func TestNewDisabledWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	os.Unsetenv("ANTHROPIC_API_KEY") //nolint:errcheck

	s := New("claude-haiku-4-5")
	if s.Enabled() {
		t.Fatal("expected Summarizer to be disabled without ANTHROPIC_API_KEY")
	}
}

func TestNewEnabledWithAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")

	s := New("claude-haiku-4-5")
	if !s.Enabled() {
		t.Fatal("expected Summarizer to be enabled with ANTHROPIC_API_KEY set")
	}
}

func TestSummarizeDisabledReturnsError(t *testing.T) {
	var s *Summarizer
	_, err := s.Summarize(nil, "", nil)
	if err == nil {
		t.Fatal("expected error from disabled summarizer")
	}
}

func TestBuildDigestIncludesRecentFeedback(t *testing.T) {
	history := []model.EvalResult{
		{Step: 1, Score: 0.4, EMAScore: 0.4, Feedback: []string{"✅ Lint passed"}, Reasons: []string{"continue"}},
		{Step: 2, Score: 0.9, EMAScore: 0.7, ShouldHalt: true, Feedback: []string{"✅ Tests passed: 10/10"}, Reasons: []string{"success"}},
	}
	digest := buildDigest("trying a caching layer", history)

	if !strings.Contains(digest, "Steps run: 2") {
		t.Fatalf("expected step count in digest, got %q", digest)
	}
	if !strings.Contains(digest, "trying a caching layer") {
		t.Fatalf("expected agent notes in digest, got %q", digest)
	}
	if !strings.Contains(digest, "Tests passed: 10/10") {
		t.Fatalf("expected recent feedback in digest, got %q", digest)
	}
}
