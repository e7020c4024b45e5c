// Package summarizer condenses a session's feedback history into a short
// prose summary via the Anthropic Messages API, for display alongside a
// halted session's raw per-iteration feedback lines. When the required API
// key is missing the summarizer is constructed in a disabled state so the
// process always starts successfully.
package summarizer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/coderefine/engine/internal/model"
)

const systemPrompt = "You are a concise technical summarizer. Summarize the following iterative code-refinement session in 2-4 sentences. Focus on: what was probed (data quality, tests, lint, performance), what issues remained at halt, and why the loop stopped. Be specific about scores and the halt reason."

// Summarizer generates post-halt summaries. A nil *Summarizer (returned by
// New when ANTHROPIC_API_KEY is unset) means summarization is disabled;
// Enabled reports this so callers can skip the feature without special-
// casing every call site.
type Summarizer struct {
	client anthropic.Client
	model  string
}

// New constructs a Summarizer if ANTHROPIC_API_KEY is set, otherwise
// returns nil. model is the Anthropic model identifier to use (e.g.
// "claude-haiku-4-5"); callers should pass a fast/cheap model since this
// runs after every halted session, not on the critical iteration path.
func New(model string) *Summarizer {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil
	}
	return &Summarizer{client: anthropic.NewClient(), model: model}
}

// Enabled reports whether s is usable (non-nil).
func (s *Summarizer) Enabled() bool { return s != nil }

// Summarize builds a plain-text digest of a session's final history entry
// (step, score, EMA, halt reasons), its agent notes, and the feedback of
// its last five evaluations, then asks the model to condense it into a
// short prose summary.
func (s *Summarizer) Summarize(ctx context.Context, zNotes string, history []model.EvalResult) (string, error) {
	if s == nil {
		return "", fmt.Errorf("summarizer is disabled (ANTHROPIC_API_KEY not set)")
	}
	if len(history) == 0 {
		return "", fmt.Errorf("no evaluations to summarize")
	}

	digest := buildDigest(zNotes, history)

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 300,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(digest)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}

func buildDigest(zNotes string, history []model.EvalResult) string {
	var b strings.Builder
	last := history[len(history)-1]

	fmt.Fprintf(&b, "Steps run: %d\n", last.Step)
	fmt.Fprintf(&b, "Final score: %.4f (ema %.4f)\n", last.Score, last.EMAScore)
	fmt.Fprintf(&b, "Halted: %t, reasons: %s\n", last.ShouldHalt, strings.Join(last.Reasons, "; "))
	if zNotes != "" {
		fmt.Fprintf(&b, "Agent notes: %s\n", zNotes)
	}
	b.WriteString("Recent feedback:\n")
	start := len(history) - 5
	if start < 0 {
		start = 0
	}
	for _, r := range history[start:] {
		fmt.Fprintf(&b, "- step %d: %s\n", r.Step, strings.Join(r.Feedback, " | "))
	}
	return b.String()
}
