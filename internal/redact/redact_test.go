package redact

import (
	"os"
	"strings"
	"testing"
)

func TestRedactReplacesKnownCredential(t *testing.T) {
	t.Setenv("CODEREFINE_CRED_API_TOKEN", "sekret-value-123")
	f := New()
	got := f.Redact("connecting with token sekret-value-123 now")
	if got == "connecting with token sekret-value-123 now" {
		t.Fatal("expected credential to be redacted")
	}
	if want := "[REDACTED:CODEREFINE_CRED_API_TOKEN]"; !strings.Contains(got, want) {
		t.Fatalf("expected placeholder %q in %q", want, got)
	}
}

func TestRedactNoOpWithoutCredentials(t *testing.T) {
	// Ensure no leftover CODEREFINE_CRED_* vars from other tests leak in.
	for _, e := range os.Environ() {
		if len(e) > len(credPrefix) && e[:len(credPrefix)] == credPrefix {
			t.Skip("environment already carries a credential var")
		}
	}
	f := New()
	input := "nothing secret here"
	if got := f.Redact(input); got != input {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
