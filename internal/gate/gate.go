// Package gate decides whether implementation-class actions are allowed.
//
// The gate maintains two static action sets: always-allowed actions
// (research, planning, status) that never require tracked work, and gated
// actions (implementation, test, commit) that require at least one
// non-completed todo in the session. Actions in neither set default to
// allowed: the gate fails open, consistent with the non-blocking contract
// toward the host.
//
// The decision is a pure function of (action gated?, todos present?, bypass
// active?) and never of todo content. Blocking never mutates state; the
// check is idempotent.
package gate

import "log/slog"

// EnvBypass is the environment variable that disables gating entirely when
// set to a non-empty value other than "0".
const EnvBypass = "FLOWGATE_BYPASS"

// Decision is the structured allow/block result consumed by the host before
// it permits the requested action to proceed.
type Decision struct {
	// Decision is "allow" or "block".
	Decision string `json:"decision"`

	// Reason explains a block; empty on allow.
	Reason string `json:"reason,omitempty"`
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Decision == "allow"
}

// allow is the zero-cost permit decision.
var allow = Decision{Decision: "allow"}

// Gate evaluates action requests against the session's todo state.
type Gate struct {
	alwaysAllowed map[string]bool
	gated         map[string]bool
	logger        *slog.Logger
}

// defaultAlwaysAllowed lists research/planning/status action classes that
// never require tracked work.
var defaultAlwaysAllowed = []string{
	"read", "search", "grep", "glob", "plan", "status", "question", "todo",
}

// defaultGated lists implementation/test/commit action classes that require
// at least one non-completed todo.
var defaultGated = []string{
	"write", "edit", "multiedit", "implement", "test", "commit",
}

// New creates a [Gate] with the default action sets. Pass nil to use the
// default logger.
func New(logger *slog.Logger) *Gate {
	return NewWithSets(defaultAlwaysAllowed, defaultGated, logger)
}

// NewWithSets creates a [Gate] with explicit always-allowed and gated action
// sets. An action appearing in both sets is treated as always allowed.
func NewWithSets(alwaysAllowed, gated []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		alwaysAllowed: make(map[string]bool, len(alwaysAllowed)),
		gated:         make(map[string]bool, len(gated)),
		logger:        logger,
	}
	for _, id := range alwaysAllowed {
		g.alwaysAllowed[id] = true
	}
	for _, id := range gated {
		g.gated[id] = true
	}
	return g
}

// Check decides whether actionID may proceed.
//
// Block iff the action is gated, no non-completed todo exists, and no bypass
// is active. Everything else allows: always-allowed actions, unknown action
// ids (fail open), and any action under bypass.
func (g *Gate) Check(actionID string, hasTodos, bypass bool) Decision {
	if bypass {
		return allow
	}
	if g.alwaysAllowed[actionID] || !g.gated[actionID] {
		return allow
	}
	if hasTodos {
		return allow
	}

	g.logger.Info("blocking gated action without tracked work",
		slog.String("action", actionID))
	return Decision{
		Decision: "block",
		Reason:   "no pending or in-progress task tracks this work; add a todo first or use the override prefix",
	}
}
