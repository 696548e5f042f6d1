// Package session tracks active workflow progress across turns.
//
// A session is the durable, per-conversation record of a detected workflow:
// which step is current, which steps completed or were skipped, and the todo
// list that gates implementation-class actions. Sessions survive process
// restarts within their TTL window because the host invokes flowgate as a
// short-lived process per turn.
//
// Key types:
//   - [Session] - The persisted per-session-id record
//   - [Store] - Durable key-value persistence ([FileStore], [MemoryStore])
//   - [Machine] - State transitions: begin, confirm, advance, skip, abort
package session

import "time"

// DefaultTTL is the session expiry window when the record does not carry one.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle state of a persisted session.
//
// Idle, Completed, Aborted and Expired are not represented: an idle session
// simply does not exist in the store, and the terminal states discard the
// record. Only the two in-flight states are ever persisted.
type State string

const (
	// StateAwaitingConfirmation marks a provisional session created for a
	// confirmFirst workflow. The step index does not advance until the
	// user confirms.
	StateAwaitingConfirmation State = "awaiting-confirmation"

	// StateActive marks a session whose steps are advancing.
	StateActive State = "active"
)

// TodoStatus is the tracked state of a single todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is a unit of tracked work. Enforcement decisions depend only on
// whether non-completed todos exist, never on their content.
type Todo struct {
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// Session is the durable record of one conversation's workflow progress.
//
// The sequence is copied from the workflow definition at creation time, so
// later catalog edits never mutate an in-flight session. A session may carry
// no workflow at all (WorkflowID empty) when it exists purely to track
// ad-hoc todos.
type Session struct {
	// ID is the host-supplied session identifier.
	ID string `json:"sessionId"`

	// WorkflowID names the detected workflow, or "" for an ad-hoc
	// todo-only session.
	WorkflowID string `json:"workflowId,omitempty"`

	// Sequence is the step list copied from the definition at creation.
	Sequence []string `json:"sequence,omitempty"`

	// State is the in-flight lifecycle state.
	State State `json:"state"`

	// CurrentStepIndex is 0-based; always within [0, len(Sequence)].
	CurrentStepIndex int `json:"currentStepIndex"`

	// CompletedSteps lists step identifiers completed in order. Skipped
	// steps are never recorded here.
	CompletedSteps []string `json:"completedSteps,omitempty"`

	// SkippedSteps lists step identifiers passed over with the skip
	// control, kept separate so CompletedSteps stays an ordered
	// subsequence of Sequence.
	SkippedSteps []string `json:"skippedSteps,omitempty"`

	// Todos is the session's tracked work list.
	Todos []Todo `json:"todos,omitempty"`

	StartedAt     time.Time `json:"startedAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`

	// TTLSeconds is the expiry window after LastUpdatedAt. Zero means
	// [DefaultTTL].
	TTLSeconds int64 `json:"ttlSeconds,omitempty"`

	// BypassTurn marks that the most recent routed turn carried the
	// override prefix; the enforcement gate honors it for that turn and
	// the next routed turn clears it.
	BypassTurn bool `json:"bypassTurn,omitempty"`

	// Version supports optimistic concurrency in the store.
	Version int `json:"version"`
}

// TTL returns the session's expiry window, defaulting when unset.
func (s *Session) TTL() time.Duration {
	if s.TTLSeconds <= 0 {
		return DefaultTTL
	}
	return time.Duration(s.TTLSeconds) * time.Second
}

// Expired reports whether the session is stale as of now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.LastUpdatedAt.Add(s.TTL()))
}

// Completed reports whether every step in the sequence has been passed,
// by completion or by skip.
func (s *Session) Completed() bool {
	return len(s.Sequence) > 0 && s.CurrentStepIndex >= len(s.Sequence)
}

// CurrentStep returns the step identifier at the current index. The second
// return value is false when the sequence is exhausted or absent.
func (s *Session) CurrentStep() (string, bool) {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Sequence) {
		return "", false
	}
	return s.Sequence[s.CurrentStepIndex], true
}

// HasTodos reports whether any todo is not yet completed. This boolean is
// the only todo-derived input the enforcement gate consumes.
func (s *Session) HasTodos() bool {
	for _, t := range s.Todos {
		if t.Status != TodoCompleted {
			return true
		}
	}
	return false
}
