package pattern

import (
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCompile_SkipsMalformedPatterns(t *testing.T) {
	s := Compile([]string{`\bfix\b`, `[unclosed`, `\bbug\b`}, discard())

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (malformed pattern should be dropped)", s.Len())
	}
	if !s.Matches("fix the bug") {
		t.Error("surviving patterns should still match")
	}
}

func TestSet_CaseInsensitive(t *testing.T) {
	s := Compile([]string{`\bfix\b`}, discard())

	for _, input := range []string{"fix it", "Fix it", "FIX IT"} {
		if !s.Matches(input) {
			t.Errorf("Matches(%q) = false, want true", input)
		}
	}
}

func TestSet_Matching(t *testing.T) {
	s := Compile([]string{`\bfix\b`, `\bbug\b`, `\bcrash\b`}, discard())

	got := s.Matching("fix the login bug")
	want := []string{`\bfix\b`, `\bbug\b`}

	if len(got) != len(want) {
		t.Fatalf("Matching() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Matching()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSet_ZeroValue(t *testing.T) {
	var s Set
	if s.Matches("anything") {
		t.Error("zero-value set should match nothing")
	}
	if s.Matching("anything") != nil {
		t.Error("zero-value set should return nil matches")
	}
}

func TestSet_EmptyInput(t *testing.T) {
	s := Compile([]string{`\bfix\b`}, discard())
	if s.Matches("") {
		t.Error("Matches(\"\") = true, want false")
	}
}
