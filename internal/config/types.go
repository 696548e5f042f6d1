// Package config provides workflow catalog loading and management for flowgate.
//
// The catalog is loaded using Viper from a layered search path, supporting a
// JSON catalog file and environment variable overrides. The package provides
// a built-in default catalog that works out of the box, with the ability to
// customize workflows, trigger patterns, and enforcement settings.
//
// Key types:
//   - [Catalog] is the loaded, validated workflow catalog
//   - [Definition] describes one workflow with compiled pattern sets
//   - [Loader] handles Viper-based catalog loading
//
// Catalog file priority (highest to lowest):
//  1. File specified by FLOWGATE_CONFIG_PATH
//  2. ./.flowgate/workflows.json (project-level)
//  3. ~/.config/flowgate/workflows.json (user-level)
//  4. [DefaultCatalog] defaults
//
// Catalog loading never fails the caller: a missing or malformed file falls
// through to the next candidate, and the built-in defaults are the final
// fallback.
package config

import (
	"sort"

	"flowgate/internal/pattern"
)

// Settings holds the top-level behavioral switches from the catalog file.
type Settings struct {
	// Enabled turns intent detection on or off globally.
	// When false, every turn is routed through untouched.
	Enabled bool `mapstructure:"enabled"`

	// ConfirmHighImpact forces interactive confirmation for workflows
	// flagged confirmFirst before any session state is committed.
	ConfirmHighImpact bool `mapstructure:"confirmHighImpact"`

	// OverridePrefix is the input prefix that skips detection entirely
	// for one turn (default "quick:"). Matched case-insensitively after
	// trimming whitespace.
	OverridePrefix string `mapstructure:"overridePrefix"`

	// AllowOverride controls whether the override prefix is honored.
	AllowOverride bool `mapstructure:"allowOverride"`
}

// Definition describes a single workflow: how it is detected and the ordered
// steps it drives once active.
//
// Trigger and exclude pattern sets are compiled once at load time. An exclude
// match vetoes the workflow for an input before triggers are even evaluated.
type Definition struct {
	// ID is the unique catalog key, taken from the workflows object key
	// in the catalog file.
	ID string

	// Name is the display label shown in guidance output.
	Name string

	// Triggers is the compiled trigger pattern set. Each matching pattern
	// contributes a fixed score increment during classification.
	Triggers pattern.Set

	// Excludes is the compiled exclude pattern set. Any match disqualifies
	// this workflow for the input entirely.
	Excludes pattern.Set

	// Sequence is the ordered list of step identifiers. Never empty in a
	// validated catalog; definitions with an empty sequence are dropped
	// at load time.
	Sequence []string

	// ConfirmFirst requires interactive confirmation before the session
	// starts advancing.
	ConfirmFirst bool

	// Priority breaks score ties; a lower value is a stronger preference.
	Priority int
}

// Command maps a step identifier to its external invocation descriptor.
// The invocation itself belongs to the host; flowgate only renders the
// display name.
type Command struct {
	// DisplayName is the human-facing label for the step, typically a
	// slash command like "/plan".
	DisplayName string `mapstructure:"displayName"`
}

// Catalog is the loaded and validated workflow catalog.
//
// Workflows are held in a deterministic order (priority ascending, then ID
// ascending) so classification ranking never depends on JSON object iteration
// order. Catalogs are immutable after load and safe for concurrent reads.
type Catalog struct {
	Settings Settings

	// Workflows in deterministic catalog order.
	Workflows []Definition

	// CommandMapping resolves step identifiers to display descriptors.
	CommandMapping map[string]Command
}

// Workflow looks up a definition by ID. The second return value reports
// whether the ID exists in the catalog.
func (c *Catalog) Workflow(id string) (Definition, bool) {
	for _, def := range c.Workflows {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// DisplayName resolves a step identifier to its display name via the command
// mapping. Unmapped step identifiers are tolerated and rendered with the
// fallback convention "/" + stepID.
func (c *Catalog) DisplayName(stepID string) string {
	if cmd, ok := c.CommandMapping[stepID]; ok && cmd.DisplayName != "" {
		return cmd.DisplayName
	}
	return "/" + stepID
}

// sortWorkflows normalizes workflow order to priority ascending, then ID
// ascending. Classification iterates this order, which makes score ties
// resolve deterministically instead of by map iteration order.
func sortWorkflows(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Priority != defs[j].Priority {
			return defs[i].Priority < defs[j].Priority
		}
		return defs[i].ID < defs[j].ID
	})
}
