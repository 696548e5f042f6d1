// Package pattern compiles user-editable regular expression lists into
// matchable sets.
//
// Trigger and exclude patterns come from the workflow catalog file, which is
// hand-edited JSON. A typo in one expression must not take down classification
// for the whole catalog, so [Compile] drops malformed expressions with a
// warning and keeps the rest. Matching is always case-insensitive.
//
// Key types:
//   - [Set] - An immutable, compiled set of patterns with pure match methods
package pattern

import (
	"log/slog"
	"regexp"
)

// compiled pairs a pattern's source text with its compiled form. The source
// text is reported back to callers for explainability.
type compiled struct {
	source string
	re     *regexp.Regexp
}

// Set is a compiled list of case-insensitive regular expressions.
//
// The zero value is an empty set that matches nothing. Sets are immutable
// after [Compile] and safe for concurrent use.
type Set struct {
	patterns []compiled
}

// Compile builds a [Set] from raw expression strings.
//
// Each expression is compiled case-insensitively. Expressions that fail to
// compile are skipped with a warning on logger; they contribute no matches
// but never abort compilation of the remaining expressions.
func Compile(exprs []string, logger *slog.Logger) Set {
	if logger == nil {
		logger = slog.Default()
	}

	patterns := make([]compiled, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			logger.Warn("skipping malformed pattern",
				slog.String("pattern", expr),
				slog.String("error", err.Error()))
			continue
		}
		patterns = append(patterns, compiled{source: expr, re: re})
	}

	return Set{patterns: patterns}
}

// Matches reports whether any pattern in the set matches input.
func (s Set) Matches(input string) bool {
	for _, p := range s.patterns {
		if p.re.MatchString(input) {
			return true
		}
	}
	return false
}

// Matching returns the source text of every pattern that matches input,
// in set order. Returns nil when nothing matches.
func (s Set) Matching(input string) []string {
	var matched []string
	for _, p := range s.patterns {
		if p.re.MatchString(input) {
			matched = append(matched, p.source)
		}
	}
	return matched
}

// Len returns the number of successfully compiled patterns in the set.
func (s Set) Len() int {
	return len(s.patterns)
}
