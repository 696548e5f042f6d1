// Package classify scores free-text user input against the workflow catalog.
//
// Classification is a pure function of the input text and the catalog: no
// I/O, no side effects, deterministic results. The algorithm is, in order:
//
//  1. Override check: input starting with the configured override prefix
//     (trimmed, case-insensitive) is skipped outright.
//  2. Explicit-invocation check: input matching ^/\w+ is skipped; the user
//     already named a command and needs no routing.
//  3. Per-workflow scoring: an exclude-pattern match vetoes the workflow
//     before triggers are evaluated; otherwise each matching trigger
//     pattern adds a fixed increment to the raw score.
//  4. Ranking by adjusted score (raw score minus priority) over the
//     catalog's deterministic order.
//
// Key types:
//   - [Detection] - The selected workflow with confidence and diagnostics
//   - [Outcome] - Either a detection, a skip reason, or neither (no match)
package classify

import (
	"regexp"
	"strings"

	"flowgate/internal/config"
)

// triggerScore is the raw score contributed by each matching trigger pattern.
const triggerScore = 10

// maxAlternatives bounds the runner-up workflow IDs reported for diagnostics.
const maxAlternatives = 2

// explicitCommandRe recognizes inputs that already invoke a command directly.
var explicitCommandRe = regexp.MustCompile(`^/\w+`)

// SkipReason explains why classification was short-circuited before scoring.
type SkipReason string

const (
	// SkipOverridePrefix means the input carried the override prefix.
	SkipOverridePrefix SkipReason = "override_prefix"

	// SkipExplicitCommand means the input is already an explicit /command.
	SkipExplicitCommand SkipReason = "explicit_command"
)

// Detection is the ephemeral result of one classification call.
type Detection struct {
	// WorkflowID is the selected workflow's catalog key.
	WorkflowID string

	// Confidence is an integer 0-100 derived from the raw score.
	Confidence int

	// MatchedPatterns lists the trigger pattern sources that fired, for
	// explainability and testing.
	MatchedPatterns []string

	// Alternatives holds up to two runner-up workflow IDs by adjusted
	// score, for diagnostics.
	Alternatives []string
}

// Outcome is the result of [Detect].
//
// Exactly one of three shapes: Skipped non-empty (short-circuit before
// scoring), Detection non-nil (a workflow was selected), or both zero
// (nothing scored above zero).
type Outcome struct {
	Detection *Detection
	Skipped   SkipReason
}

// Matched reports whether a workflow was selected.
func (o Outcome) Matched() bool {
	return o.Detection != nil
}

// candidate is a surviving workflow during ranking.
type candidate struct {
	def      config.Definition
	raw      int
	adjusted int
	matched  []string
}

// Detect classifies input against the catalog.
//
// See the package documentation for the algorithm. Detect never fails:
// malformed patterns were already dropped at catalog load time, so the worst
// case is an empty outcome.
func Detect(input string, cat *config.Catalog) Outcome {
	trimmed := strings.TrimSpace(input)

	if cat.Settings.AllowOverride && cat.Settings.OverridePrefix != "" {
		prefix := strings.ToLower(cat.Settings.OverridePrefix)
		if strings.HasPrefix(strings.ToLower(trimmed), prefix) {
			return Outcome{Skipped: SkipOverridePrefix}
		}
	}

	if explicitCommandRe.MatchString(trimmed) {
		return Outcome{Skipped: SkipExplicitCommand}
	}

	var survivors []candidate
	for _, def := range cat.Workflows {
		// Exclude short-circuits before trigger evaluation: a vetoed
		// workflow cannot be selected no matter how many triggers match.
		if def.Excludes.Matches(trimmed) {
			continue
		}

		matched := def.Triggers.Matching(trimmed)
		if len(matched) == 0 {
			continue
		}

		raw := len(matched) * triggerScore
		survivors = append(survivors, candidate{
			def:      def,
			raw:      raw,
			adjusted: raw - def.Priority,
			matched:  matched,
		})
	}

	if len(survivors) == 0 {
		return Outcome{}
	}

	// Catalog order is already deterministic (priority asc, then ID asc),
	// so a stable max over it breaks adjusted-score ties the same way on
	// every call.
	best := 0
	for i := 1; i < len(survivors); i++ {
		if survivors[i].adjusted > survivors[best].adjusted {
			best = i
		}
	}

	selected := survivors[best]
	det := &Detection{
		WorkflowID:      selected.def.ID,
		Confidence:      confidence(selected.raw),
		MatchedPatterns: selected.matched,
		Alternatives:    alternatives(survivors, best),
	}
	return Outcome{Detection: det}
}

// confidence maps a raw score to the 0-100 range.
func confidence(raw int) int {
	c := raw * 10
	if c > 100 {
		return 100
	}
	return c
}

// alternatives returns up to maxAlternatives runner-up workflow IDs ordered
// by descending adjusted score, preserving catalog order on ties.
func alternatives(survivors []candidate, best int) []string {
	var rest []candidate
	for i, c := range survivors {
		if i != best {
			rest = append(rest, c)
		}
	}

	// Insertion sort keeps the ranking stable; survivor lists are tiny.
	for i := 1; i < len(rest); i++ {
		for j := i; j > 0 && rest[j].adjusted > rest[j-1].adjusted; j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}

	var ids []string
	for i := 0; i < len(rest) && i < maxAlternatives; i++ {
		ids = append(ids, rest[i].def.ID)
	}
	return ids
}
