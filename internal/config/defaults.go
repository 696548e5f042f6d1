package config

import (
	"log/slog"

	"flowgate/internal/pattern"
)

// DefaultOverridePrefix is the input prefix that skips intent detection for
// one turn when no catalog file overrides it.
const DefaultOverridePrefix = "quick:"

// DefaultCatalog returns the built-in workflow catalog used when no catalog
// file can be loaded.
//
// The defaults cover the three common development intents: feature work,
// bug fixing, and refactoring. Refactoring is flagged confirmFirst because
// it tends to touch code the user did not mention.
func DefaultCatalog() *Catalog {
	discard := slog.New(slog.DiscardHandler)

	cat := &Catalog{
		Settings: Settings{
			Enabled:           true,
			ConfirmHighImpact: true,
			OverridePrefix:    DefaultOverridePrefix,
			AllowOverride:     true,
		},
		Workflows: []Definition{
			{
				ID:   "bugfix",
				Name: "Bug Fix",
				Triggers: pattern.Compile([]string{
					`\bfix\b`,
					`\bbug\b`,
					`\b(broken|crash|error|regression)\b`,
				}, discard),
				Sequence: []string{"investigate", "implement", "test", "commit"},
				Priority: 1,
			},
			{
				ID:   "feature",
				Name: "Feature",
				Triggers: pattern.Compile([]string{
					`\b(add|create|implement|build)\b.*\b(feature|endpoint|page|component|command)\b`,
					`\badd\b`,
					`\bnew\b.*\b(feature|capability)\b`,
				}, discard),
				Excludes: pattern.Compile([]string{
					`\b(fix|bug)\b`,
				}, discard),
				Sequence: []string{"plan", "implement", "test", "commit"},
				Priority: 2,
			},
			{
				ID:   "refactor",
				Name: "Refactor",
				Triggers: pattern.Compile([]string{
					`\b(refactor|restructure|clean\s?up|simplify)\b`,
					`\bextract\b.*\b(function|method|package|module)\b`,
				}, discard),
				Excludes: pattern.Compile([]string{
					`\b(fix|bug)\b`,
				}, discard),
				Sequence:     []string{"plan", "implement", "test"},
				ConfirmFirst: true,
				Priority:     3,
			},
		},
		CommandMapping: map[string]Command{
			"plan":        {DisplayName: "/plan"},
			"investigate": {DisplayName: "/investigate"},
			"implement":   {DisplayName: "/implement"},
			"test":        {DisplayName: "/test"},
			"commit":      {DisplayName: "/commit"},
		},
	}

	sortWorkflows(cat.Workflows)
	return cat
}
