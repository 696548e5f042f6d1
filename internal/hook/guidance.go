package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StepState marks a step's position relative to the session's progress when
// rendering the step list.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepSkipped   StepState = "skipped"
	StepCurrent   StepState = "current"
	StepPending   StepState = "pending"
)

// Step is one rendered entry of a workflow's sequence.
type Step struct {
	ID      string    `json:"id"`
	Display string    `json:"display"`
	State   StepState `json:"state"`
}

// Guidance is the output block returned to the host for one turn.
//
// A zero-value Guidance renders as an empty string: the host shows nothing
// and the turn proceeds without orchestration. Failure paths always degrade
// to that shape.
type Guidance struct {
	SessionID string `json:"sessionId,omitempty"`

	// Workflow is the detected or active workflow's display name.
	Workflow string `json:"workflow,omitempty"`

	// WorkflowID is the catalog key, for hosts that key on it.
	WorkflowID string `json:"workflowId,omitempty"`

	// Confidence is the detection confidence (0-100); zero when the turn
	// did not run detection.
	Confidence int `json:"confidence,omitempty"`

	// Steps is the ordered sequence with per-step progress state.
	Steps []Step `json:"steps,omitempty"`

	// NeedsConfirmation is set when the workflow requires an explicit
	// affirmative response before any state advances.
	NeedsConfirmation bool `json:"needsConfirmation,omitempty"`

	// Alternatives lists runner-up workflow ids for diagnostics.
	Alternatives []string `json:"alternatives,omitempty"`

	// Message is the free-text portion: a confirmation prompt, an
	// execution directive, or a progress note.
	Message string `json:"message,omitempty"`
}

// Empty reports whether the guidance carries nothing worth showing.
func (g *Guidance) Empty() bool {
	return g == nil || (g.Workflow == "" && g.Message == "" && len(g.Steps) == 0)
}

// Render formats the guidance as the plain-text block the host injects into
// its turn. Plain text on purpose: the host decides presentation, so no
// terminal escape sequences belong here.
func (g *Guidance) Render() string {
	if g.Empty() {
		return ""
	}

	var b strings.Builder
	if g.Workflow != "" {
		fmt.Fprintf(&b, "Workflow: %s", g.Workflow)
		if g.Confidence > 0 {
			fmt.Fprintf(&b, " (confidence %d%%)", g.Confidence)
		}
		b.WriteString("\n")
	}

	for i, step := range g.Steps {
		marker := " "
		switch step.State {
		case StepCompleted:
			marker = "x"
		case StepSkipped:
			marker = "-"
		case StepCurrent:
			marker = ">"
		}
		fmt.Fprintf(&b, "  [%s] %d. %s\n", marker, i+1, step.Display)
	}

	if g.Message != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.Message)
		b.WriteString("\n")
	}

	return b.String()
}

// WriteJSON writes the guidance as a single JSON line, the shape serve mode
// emits.
func (g *Guidance) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(g)
}
