// Package router runs the per-turn orchestration pipeline.
//
// Each host turn is one synchronous pass: control inputs (abort, confirm)
// are handled first, then a reported prior action may advance the session's
// step, then the input text is classified and a session is created or
// resumed. The router owns the ordering; classification, session state, and
// enforcement live in their own packages.
//
// The router never fails a turn. Every internal error degrades to empty
// guidance with a log entry, honoring the non-blocking contract toward the
// host: the worst user-visible failure is a silently skipped workflow
// suggestion.
package router

import (
	"fmt"
	"log/slog"
	"strings"

	"flowgate/internal/classify"
	"flowgate/internal/config"
	"flowgate/internal/hook"
	"flowgate/internal/session"
)

// Router routes one host event through classification and session state.
type Router struct {
	catalog *config.Catalog
	machine *session.Machine
	logger  *slog.Logger
}

// New creates a [Router]. Pass nil to use the default logger.
func New(catalog *config.Catalog, machine *session.Machine, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{catalog: catalog, machine: machine, logger: logger}
}

// Control words recognized ahead of classification. Abort is processed
// before any step-advance logic for the turn.
var (
	abortWords       = map[string]bool{"abort": true, "abort workflow": true, "cancel workflow": true}
	affirmativeWords = map[string]bool{"yes": true, "y": true, "confirm": true, "proceed": true, "ok": true}
	negativeWords    = map[string]bool{"no": true, "n": true}
	skipWords        = map[string]bool{"skip": true, "skip step": true}
)

// Route processes one turn and returns the guidance to hand back to the
// host. The returned guidance is never nil; it may be empty.
func (r *Router) Route(ev *hook.Event) *hook.Guidance {
	if !r.catalog.Settings.Enabled {
		return &hook.Guidance{SessionID: ev.SessionID}
	}

	trimmed := strings.TrimSpace(ev.Text)
	lowered := strings.ToLower(trimmed)

	cur, err := r.machine.Current(ev.SessionID)
	if err != nil {
		r.logger.Warn("session read failed, routing without state",
			slog.String("session", ev.SessionID),
			slog.String("error", err.Error()))
		cur = nil
	}

	// Abort wins over everything else this turn.
	if abortWords[lowered] {
		if err := r.machine.Abort(ev.SessionID); err != nil {
			r.logger.Warn("abort failed", slog.String("error", err.Error()))
		}
		return &hook.Guidance{SessionID: ev.SessionID, Message: "Workflow aborted."}
	}

	if cur != nil && cur.State == session.StateAwaitingConfirmation {
		if g := r.resolveConfirmation(ev.SessionID, cur, lowered); g != nil {
			return g
		}
	}

	if skipWords[lowered] && cur != nil && cur.State == session.StateActive {
		return r.skipStep(ev.SessionID)
	}

	// A reported prior action may complete the current step before the
	// new text is considered.
	if cur != nil && cur.State == session.StateActive && ev.PriorAction != nil && ev.PriorAction.Succeeded() {
		advanced, err := r.machine.Advance(ev.SessionID, ev.PriorAction.ActionID)
		if err != nil {
			r.logger.Warn("step advance failed",
				slog.String("session", ev.SessionID),
				slog.String("error", err.Error()))
		} else {
			cur = advanced
			if advanced.Completed() {
				return r.completionGuidance(ev.SessionID, advanced)
			}
		}
	}

	outcome := classify.Detect(ev.Text, r.catalog)

	switch outcome.Skipped {
	case classify.SkipOverridePrefix:
		// The override discards a pending confirmation: the user chose to
		// handle the request directly instead of answering the prompt.
		if cur != nil && cur.State == session.StateAwaitingConfirmation {
			if err := r.machine.Abort(ev.SessionID); err != nil {
				r.logger.Warn("abort failed", slog.String("error", err.Error()))
			}
		}
		// Bypass is turn-scoped: the gate honors it until the next
		// routed turn clears it below.
		if err := r.machine.SetBypass(ev.SessionID, true); err != nil {
			r.logger.Warn("bypass flag update failed", slog.String("error", err.Error()))
		}
		return &hook.Guidance{SessionID: ev.SessionID}
	case classify.SkipExplicitCommand:
		return &hook.Guidance{SessionID: ev.SessionID}
	}

	if err := r.machine.SetBypass(ev.SessionID, false); err != nil {
		r.logger.Warn("bypass flag update failed", slog.String("error", err.Error()))
	}

	// One active workflow per session: a session driving a workflow wins
	// over any new detection this turn. A workflow-less record (ad-hoc
	// todos, the override marker) does not block detection.
	if cur != nil && cur.WorkflowID != "" {
		if cur.State == session.StateAwaitingConfirmation {
			return r.confirmationGuidance(ev.SessionID, cur)
		}
		return r.progressGuidance(ev.SessionID, cur)
	}

	if !outcome.Matched() {
		return &hook.Guidance{SessionID: ev.SessionID}
	}

	return r.startWorkflow(ev.SessionID, outcome.Detection)
}

// resolveConfirmation handles yes/no responses for a provisional session.
// Returns nil when the input is neither, letting the turn continue.
func (r *Router) resolveConfirmation(sessionID string, cur *session.Session, lowered string) *hook.Guidance {
	switch {
	case affirmativeWords[lowered]:
		confirmed, err := r.machine.Confirm(sessionID)
		if err != nil {
			r.logger.Warn("confirm failed", slog.String("error", err.Error()))
			return &hook.Guidance{SessionID: sessionID}
		}
		return r.directiveGuidance(sessionID, confirmed)
	case negativeWords[lowered]:
		if err := r.machine.Reject(sessionID); err != nil {
			r.logger.Warn("reject failed", slog.String("error", err.Error()))
		}
		return &hook.Guidance{SessionID: sessionID, Message: "Workflow discarded."}
	}
	return nil
}

// startWorkflow creates a session for a fresh detection and renders either a
// confirmation prompt or an execution directive.
func (r *Router) startWorkflow(sessionID string, det *classify.Detection) *hook.Guidance {
	def, ok := r.catalog.Workflow(det.WorkflowID)
	if !ok {
		r.logger.Warn("detection references unknown workflow",
			slog.String("workflow", det.WorkflowID))
		return &hook.Guidance{SessionID: sessionID}
	}

	confirm := def.ConfirmFirst && r.catalog.Settings.ConfirmHighImpact
	s, err := r.machine.Begin(sessionID, def, confirm, session.DefaultTTL)
	if err != nil {
		r.logger.Warn("session begin failed",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		return &hook.Guidance{SessionID: sessionID}
	}

	g := &hook.Guidance{
		SessionID:    sessionID,
		Workflow:     def.Name,
		WorkflowID:   def.ID,
		Confidence:   det.Confidence,
		Steps:        r.steps(s),
		Alternatives: det.Alternatives,
	}
	if confirm {
		g.NeedsConfirmation = true
		g.Message = fmt.Sprintf("Detected the %s workflow. Reply \"yes\" to start it or \"no\" to dismiss.", def.Name)
	} else {
		g.Message = r.directive(s)
	}
	return g
}

// skipStep handles the explicit skip control.
func (r *Router) skipStep(sessionID string) *hook.Guidance {
	s, err := r.machine.Skip(sessionID)
	if err != nil {
		r.logger.Warn("skip failed", slog.String("error", err.Error()))
		return &hook.Guidance{SessionID: sessionID}
	}
	if s.Completed() {
		return r.completionGuidance(sessionID, s)
	}
	return r.progressGuidance(sessionID, s)
}

// directiveGuidance renders the full execution view for a newly active
// session.
func (r *Router) directiveGuidance(sessionID string, s *session.Session) *hook.Guidance {
	name := r.workflowName(s)
	return &hook.Guidance{
		SessionID:  sessionID,
		Workflow:   name,
		WorkflowID: s.WorkflowID,
		Steps:      r.steps(s),
		Message:    r.directive(s),
	}
}

// confirmationGuidance re-prompts for a session still awaiting confirmation.
func (r *Router) confirmationGuidance(sessionID string, s *session.Session) *hook.Guidance {
	name := r.workflowName(s)
	return &hook.Guidance{
		SessionID:         sessionID,
		Workflow:          name,
		WorkflowID:        s.WorkflowID,
		Steps:             r.steps(s),
		NeedsConfirmation: true,
		Message:           fmt.Sprintf("The %s workflow is awaiting confirmation. Reply \"yes\" to start it or \"no\" to dismiss.", name),
	}
}

// progressGuidance renders the step list for an in-flight session.
func (r *Router) progressGuidance(sessionID string, s *session.Session) *hook.Guidance {
	return &hook.Guidance{
		SessionID:  sessionID,
		Workflow:   r.workflowName(s),
		WorkflowID: s.WorkflowID,
		Steps:      r.steps(s),
		Message:    r.directive(s),
	}
}

// completionGuidance reports a finished workflow once; the session record is
// already discarded.
func (r *Router) completionGuidance(sessionID string, s *session.Session) *hook.Guidance {
	return &hook.Guidance{
		SessionID:  sessionID,
		Workflow:   r.workflowName(s),
		WorkflowID: s.WorkflowID,
		Steps:      r.steps(s),
		Message:    fmt.Sprintf("The %s workflow is complete.", r.workflowName(s)),
	}
}

// directive names the next step to execute.
func (r *Router) directive(s *session.Session) string {
	step, ok := s.CurrentStep()
	if !ok {
		return ""
	}
	return fmt.Sprintf("Proceed with %s.", r.catalog.DisplayName(step))
}

// workflowName resolves the display name, falling back to the id for
// sessions whose workflow left the catalog.
func (r *Router) workflowName(s *session.Session) string {
	if def, ok := r.catalog.Workflow(s.WorkflowID); ok {
		return def.Name
	}
	return s.WorkflowID
}

// steps renders the session's sequence with per-step progress state.
func (r *Router) steps(s *session.Session) []hook.Step {
	completed := make(map[string]int)
	for _, id := range s.CompletedSteps {
		completed[id]++
	}
	skipped := make(map[string]int)
	for _, id := range s.SkippedSteps {
		skipped[id]++
	}

	steps := make([]hook.Step, len(s.Sequence))
	for i, id := range s.Sequence {
		state := hook.StepPending
		switch {
		case i < s.CurrentStepIndex && completed[id] > 0:
			state = hook.StepCompleted
			completed[id]--
		case i < s.CurrentStepIndex:
			state = hook.StepSkipped
			if skipped[id] > 0 {
				skipped[id]--
			}
		case i == s.CurrentStepIndex:
			state = hook.StepCurrent
		}
		steps[i] = hook.Step{ID: id, Display: r.catalog.DisplayName(id), State: state}
	}
	return steps
}
