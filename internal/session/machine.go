package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flowgate/internal/config"
)

// Sentinel errors for session state transitions.
var (
	// ErrNoSession indicates no live session exists for the session id.
	// Expired and corrupted records report the same way.
	ErrNoSession = errors.New("no active session")

	// ErrSessionActive indicates a live session already exists, so a new
	// workflow cannot begin. One active workflow per session id.
	ErrSessionActive = errors.New("a session is already active")

	// ErrNotAwaiting indicates a confirm or reject control arrived for a
	// session that is not awaiting confirmation.
	ErrNotAwaiting = errors.New("session is not awaiting confirmation")
)

// Machine drives session state transitions over a [Store].
//
// All reads apply lazy TTL expiry: a stale record behaves exactly like an
// absent one and is purged on the next write. Writes use optimistic
// versioning; on conflict the transition is retried once against the fresh
// record, then dropped with a warning (last-writer-wins), since turn
// summaries are idempotent.
type Machine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewMachine creates a [Machine] over the given store. Pass nil to use the
// default logger.
func NewMachine(store Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, logger: logger, now: time.Now}
}

// Current returns the live session for sessionID, or (nil, nil) when the
// session is absent or expired.
func (m *Machine) Current(sessionID string) (*Session, error) {
	s, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if s.Expired(m.now()) {
		m.logger.Info("session expired",
			slog.String("session", sessionID),
			slog.String("workflow", s.WorkflowID),
			slog.Time("lastUpdated", s.LastUpdatedAt))
		return nil, nil
	}
	return s, nil
}

// Begin creates a session for a freshly detected workflow.
//
// The definition's sequence is copied into the record so later catalog edits
// cannot mutate it. When confirm is true the session starts in
// [StateAwaitingConfirmation] and does not advance until [Machine.Confirm].
// Returns [ErrSessionActive] when a live workflow already exists; a stale
// record is purged and replaced, and a workflow-less record (ad-hoc todos or
// the override marker) has the workflow attached in place, keeping its todos.
func (m *Machine) Begin(sessionID string, def config.Definition, confirm bool, ttl time.Duration) (*Session, error) {
	state := StateActive
	if confirm {
		state = StateAwaitingConfirmation
	}

	existing, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Expired(m.now()) {
		// Purge the stale record so the new session starts at version 0.
		if err := m.store.Delete(sessionID); err != nil {
			return nil, err
		}
		existing = nil
	}
	if existing != nil {
		if existing.WorkflowID != "" {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionActive)
		}
		s, err := m.update(sessionID, func(s *Session) error {
			s.WorkflowID = def.ID
			s.Sequence = append([]string(nil), def.Sequence...)
			s.State = state
			s.CurrentStepIndex = 0
			s.TTLSeconds = int64(ttl / time.Second)
			return nil
		})
		if err != nil {
			return nil, err
		}
		m.logger.Info("session started",
			slog.String("session", sessionID),
			slog.String("workflow", def.ID),
			slog.String("state", string(state)))
		return s, nil
	}

	now := m.now()
	s := &Session{
		ID:            sessionID,
		WorkflowID:    def.ID,
		Sequence:      append([]string(nil), def.Sequence...),
		State:         state,
		StartedAt:     now,
		LastUpdatedAt: now,
		TTLSeconds:    int64(ttl / time.Second),
	}

	if err := m.store.PutAtomic(s); err != nil {
		return nil, err
	}

	m.logger.Info("session started",
		slog.String("session", sessionID),
		slog.String("workflow", def.ID),
		slog.String("state", string(state)))
	return s, nil
}

// Confirm transitions an awaiting-confirmation session to active.
// Returns [ErrNoSession] or [ErrNotAwaiting] as appropriate.
func (m *Machine) Confirm(sessionID string) (*Session, error) {
	return m.update(sessionID, func(s *Session) error {
		if s.State != StateAwaitingConfirmation {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotAwaiting)
		}
		s.State = StateActive
		return nil
	})
}

// Reject discards a provisional awaiting-confirmation session. Rejecting an
// active session is refused with [ErrNotAwaiting]; use [Machine.Abort] to
// discard active work deliberately.
func (m *Machine) Reject(sessionID string) error {
	s, err := m.Current(sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNoSession)
	}
	if s.State != StateAwaitingConfirmation {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotAwaiting)
	}
	return m.store.Delete(sessionID)
}

// Advance records completion of the step at the current index.
//
// Out-of-order completion is refused: when completedStepID does not match
// the current step, Advance warns and returns the session unchanged. Use
// [Machine.Skip] to move past a step deliberately. When the final step
// completes, the session is reported once with its index at the end of the
// sequence and the record is discarded.
func (m *Machine) Advance(sessionID, completedStepID string) (*Session, error) {
	return m.update(sessionID, func(s *Session) error {
		if s.State != StateActive {
			m.logger.Warn("ignoring advance for unconfirmed session",
				slog.String("session", sessionID),
				slog.String("step", completedStepID))
			return errNoChange
		}
		current, ok := s.CurrentStep()
		if !ok {
			return errNoChange
		}
		if completedStepID != current {
			m.logger.Warn("ignoring out-of-order step completion",
				slog.String("session", sessionID),
				slog.String("expected", current),
				slog.String("got", completedStepID))
			return errNoChange
		}
		s.CompletedSteps = append(s.CompletedSteps, current)
		s.CurrentStepIndex++
		return nil
	})
}

// Skip advances past the current step without recording it as completed.
// The step identifier is appended to SkippedSteps instead.
func (m *Machine) Skip(sessionID string) (*Session, error) {
	return m.update(sessionID, func(s *Session) error {
		if s.State != StateActive {
			m.logger.Warn("ignoring skip for unconfirmed session",
				slog.String("session", sessionID))
			return errNoChange
		}
		current, ok := s.CurrentStep()
		if !ok {
			return errNoChange
		}
		s.SkippedSteps = append(s.SkippedSteps, current)
		s.CurrentStepIndex++
		return nil
	})
}

// Abort discards the session unconditionally. Aborting an absent session is
// a no-op.
func (m *Machine) Abort(sessionID string) error {
	m.logger.Info("session aborted", slog.String("session", sessionID))
	return m.store.Delete(sessionID)
}

// Clear is an alias for Abort used by explicit session-clear controls.
func (m *Machine) Clear(sessionID string) error {
	return m.store.Delete(sessionID)
}

// AddTodo appends a pending todo to the session, creating an ad-hoc
// workflow-less session when none exists. Ad-hoc sessions exist purely so
// the enforcement gate has todo state to consult.
func (m *Machine) AddTodo(sessionID, content string) (*Session, error) {
	s, err := m.Current(sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		now := m.now()
		s = &Session{
			ID:            sessionID,
			State:         StateActive,
			StartedAt:     now,
			LastUpdatedAt: now,
		}
		s.Todos = append(s.Todos, Todo{Content: content, Status: TodoPending})
		// An expired record may still back the absent read; purge it so
		// the fresh write starts at version 0.
		if err := m.store.Delete(sessionID); err != nil {
			return nil, err
		}
		if err := m.store.PutAtomic(s); err != nil {
			return nil, err
		}
		return s, nil
	}

	return m.update(sessionID, func(s *Session) error {
		s.Todos = append(s.Todos, Todo{Content: content, Status: TodoPending})
		return nil
	})
}

// SetTodoStatus updates the status of the todo at index.
func (m *Machine) SetTodoStatus(sessionID string, index int, status TodoStatus) (*Session, error) {
	return m.update(sessionID, func(s *Session) error {
		if index < 0 || index >= len(s.Todos) {
			return fmt.Errorf("todo index %d out of range", index)
		}
		s.Todos[index].Status = status
		return nil
	})
}

// SetBypass records or clears the one-turn override marker consumed by the
// enforcement gate.
//
// An override turn must arm the gate even when no session exists yet, so
// setting the marker creates a workflow-less record to carry it. Clearing
// the marker on a record that tracks nothing else discards the record;
// clearing with no session at all is a no-op.
func (m *Machine) SetBypass(sessionID string, bypass bool) error {
	s, err := m.Current(sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		if !bypass {
			return nil
		}
		now := m.now()
		fresh := &Session{
			ID:            sessionID,
			State:         StateActive,
			StartedAt:     now,
			LastUpdatedAt: now,
			BypassTurn:    true,
		}
		// An expired record may still back the absent read; purge it so
		// the fresh write starts at version 0.
		if err := m.store.Delete(sessionID); err != nil {
			return err
		}
		return m.store.PutAtomic(fresh)
	}
	if s.BypassTurn == bypass {
		return nil
	}
	if !bypass && s.WorkflowID == "" && len(s.Todos) == 0 {
		// The record existed only to carry the marker.
		return m.store.Delete(sessionID)
	}
	_, err = m.update(sessionID, func(s *Session) error {
		s.BypassTurn = bypass
		return nil
	})
	return err
}

// errNoChange signals from a mutate func that the session should not be
// written. It never escapes update.
var errNoChange = errors.New("no change")

// update applies mutate to the live session and persists the result.
//
// A version conflict is retried once against the refreshed record; a second
// conflict drops the update with a warning (last-writer-wins). When the
// mutation completes the sequence, the record is discarded and the finished
// session is returned for one-time reporting.
func (m *Machine) update(sessionID string, mutate func(*Session) error) (*Session, error) {
	for attempt := 0; ; attempt++ {
		s, err := m.Current(sessionID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNoSession)
		}

		if err := mutate(s); err != nil {
			if errors.Is(err, errNoChange) {
				return s, nil
			}
			return nil, err
		}
		s.LastUpdatedAt = m.now()

		if s.Completed() {
			if err := m.store.Delete(sessionID); err != nil {
				return nil, err
			}
			m.logger.Info("session completed",
				slog.String("session", sessionID),
				slog.String("workflow", s.WorkflowID))
			return s, nil
		}

		err = m.store.PutAtomic(s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		if attempt >= 1 {
			m.logger.Warn("dropping session update after repeated version conflict",
				slog.String("session", sessionID))
			return m.Current(sessionID)
		}
	}
}
