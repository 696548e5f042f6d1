package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/config"
)

func testDefinition() config.Definition {
	return config.Definition{
		ID:       "feature",
		Name:     "Feature",
		Sequence: []string{"plan", "implement", "test"},
	}
}

func newTestMachine() (*Machine, *MemoryStore) {
	store := NewMemoryStore()
	return NewMachine(store, discard()), store
}

func TestMachine_BeginActive(t *testing.T) {
	m, _ := newTestMachine()

	s, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, 0, s.CurrentStepIndex)
	assert.Equal(t, []string{"plan", "implement", "test"}, s.Sequence)
}

func TestMachine_BeginRefusedWhileActive(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	_, err = m.Begin("conv-1", config.Definition{ID: "bugfix", Sequence: []string{"investigate"}}, false, DefaultTTL)
	assert.True(t, errors.Is(err, ErrSessionActive))
}

func TestMachine_SequenceCopiedFromDefinition(t *testing.T) {
	m, _ := newTestMachine()

	def := testDefinition()
	s, err := m.Begin("conv-1", def, false, DefaultTTL)
	require.NoError(t, err)

	// Mutating the definition after creation must not affect the session.
	def.Sequence[0] = "mutated"
	assert.Equal(t, "plan", s.Sequence[0])
}

func TestMachine_AdvanceInOrder(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	s, err := m.Advance("conv-1", "plan")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentStepIndex)
	assert.Equal(t, []string{"plan"}, s.CompletedSteps)
}

func TestMachine_AdvanceOutOfOrderIsNoOp(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)
	_, err = m.Advance("conv-1", "plan")
	require.NoError(t, err)

	// Completing "test" while "implement" is current must change nothing.
	s, err := m.Advance("conv-1", "test")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentStepIndex)
	assert.Equal(t, []string{"plan"}, s.CompletedSteps)
}

func TestMachine_AdvanceNeverDecreases(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	last := 0
	for _, step := range []string{"plan", "bogus", "implement", "plan", "test"} {
		s, err := m.Advance("conv-1", step)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.CurrentStepIndex, last)
		last = s.CurrentStepIndex
	}
}

func TestMachine_CompletionDiscardsSession(t *testing.T) {
	m, store := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	for _, step := range []string{"plan", "implement"} {
		_, err = m.Advance("conv-1", step)
		require.NoError(t, err)
	}

	s, err := m.Advance("conv-1", "test")
	require.NoError(t, err)
	assert.True(t, s.Completed())

	// Reported once, then gone.
	raw, err := store.Get("conv-1")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestMachine_SkipRecordsSeparately(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)
	_, err = m.Advance("conv-1", "plan")
	require.NoError(t, err)

	s, err := m.Skip("conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentStepIndex)
	assert.Equal(t, []string{"plan"}, s.CompletedSteps, "skipped steps never join completedSteps")
	assert.Equal(t, []string{"implement"}, s.SkippedSteps)
}

func TestMachine_ConfirmFlow(t *testing.T) {
	m, _ := newTestMachine()

	s, err := m.Begin("conv-1", testDefinition(), true, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, s.State)

	// Advancing a provisional session is a no-op.
	s, err = m.Advance("conv-1", "plan")
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentStepIndex)

	s, err = m.Confirm("conv-1")
	require.NoError(t, err)
	assert.Equal(t, StateActive, s.State)

	// Confirming twice is refused.
	_, err = m.Confirm("conv-1")
	assert.True(t, errors.Is(err, ErrNotAwaiting))
}

func TestMachine_RejectDiscardsProvisional(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), true, DefaultTTL)
	require.NoError(t, err)

	require.NoError(t, m.Reject("conv-1"))

	s, err := m.Current("conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMachine_RejectActiveRefused(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	err = m.Reject("conv-1")
	assert.True(t, errors.Is(err, ErrNotAwaiting))
}

func TestMachine_AbortDiscards(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	require.NoError(t, m.Abort("conv-1"))

	s, err := m.Current("conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)

	// Aborting again is a no-op.
	require.NoError(t, m.Abort("conv-1"))
}

func TestMachine_ExpiredSessionReadsAsAbsent(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	// 25 hours later the 24h default TTL has lapsed.
	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	s, err := m.Current("conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = m.Advance("conv-1", "plan")
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestMachine_BeginReplacesExpiredSession(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	s, err := m.Begin("conv-1", config.Definition{ID: "bugfix", Sequence: []string{"investigate"}}, false, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, "bugfix", s.WorkflowID)
	assert.Equal(t, 0, s.CurrentStepIndex)
}

func TestMachine_CustomTTL(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, time.Hour)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	s, err := m.Current("conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMachine_AddTodoCreatesAdHocSession(t *testing.T) {
	m, _ := newTestMachine()

	s, err := m.AddTodo("conv-1", "wire the config")
	require.NoError(t, err)
	assert.Empty(t, s.WorkflowID)
	assert.True(t, s.HasTodos())

	s, err = m.AddTodo("conv-1", "write tests")
	require.NoError(t, err)
	assert.Len(t, s.Todos, 2)
}

func TestMachine_AddTodoReplacesExpiredSession(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	// The stale record is purged before the fresh write, so the new ad-hoc
	// session starts clean instead of tripping the version check.
	s, err := m.AddTodo("conv-1", "new work")
	require.NoError(t, err)
	assert.Empty(t, s.WorkflowID)
	require.Len(t, s.Todos, 1)
	assert.Equal(t, "new work", s.Todos[0].Content)
}

func TestMachine_BeginAttachesToAdHocSession(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.AddTodo("conv-1", "tracked task")
	require.NoError(t, err)

	s, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, "feature", s.WorkflowID)
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, 0, s.CurrentStepIndex)
	require.Len(t, s.Todos, 1, "existing todos survive the workflow attach")
}

func TestMachine_TodoCompletionFlipsHasTodos(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.AddTodo("conv-1", "only task")
	require.NoError(t, err)

	s, err := m.SetTodoStatus("conv-1", 0, TodoCompleted)
	require.NoError(t, err)
	assert.False(t, s.HasTodos())
}

func TestMachine_SetBypass(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	require.NoError(t, m.SetBypass("conv-1", true))
	s, err := m.Current("conv-1")
	require.NoError(t, err)
	assert.True(t, s.BypassTurn)

	require.NoError(t, m.SetBypass("conv-1", false))
	s, err = m.Current("conv-1")
	require.NoError(t, err)
	assert.False(t, s.BypassTurn)
	assert.Equal(t, "feature", s.WorkflowID, "clearing the marker keeps a workflow session")
}

func TestMachine_SetBypassWithoutSession(t *testing.T) {
	m, _ := newTestMachine()

	// Arming the marker with no session creates a workflow-less record so
	// the gate can honor the override on this turn.
	require.NoError(t, m.SetBypass("conv-1", true))
	s, err := m.Current("conv-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.BypassTurn)
	assert.Empty(t, s.WorkflowID)
	assert.Empty(t, s.Todos)

	// Clearing it discards the record again: it carried nothing else.
	require.NoError(t, m.SetBypass("conv-1", false))
	s, err = m.Current("conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)

	// Clearing with no session at all stays a no-op.
	require.NoError(t, m.SetBypass("nobody", false))
	s, err = m.Current("nobody")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMachine_SetBypassKeepsAdHocTodos(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.AddTodo("conv-1", "only task")
	require.NoError(t, err)

	require.NoError(t, m.SetBypass("conv-1", true))
	require.NoError(t, m.SetBypass("conv-1", false))

	// The record still tracks todos, so clearing the marker keeps it.
	s, err := m.Current("conv-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.HasTodos())
	assert.False(t, s.BypassTurn)
}

func TestMachine_SetBypassReplacesExpired(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	require.NoError(t, m.SetBypass("conv-1", true))
	s, err := m.Current("conv-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.BypassTurn)
	assert.Empty(t, s.WorkflowID, "the stale workflow must not survive")
}

// flakyStore forces a fixed number of version conflicts before writes start
// succeeding, to exercise the retry-once-then-drop policy.
type flakyStore struct {
	Store
	conflicts int
}

func (f *flakyStore) PutAtomic(s *Session) error {
	if f.conflicts > 0 {
		f.conflicts--
		return ErrVersionConflict
	}
	return f.Store.PutAtomic(s)
}

func TestMachine_ConflictRetriesOnce(t *testing.T) {
	flaky := &flakyStore{Store: NewMemoryStore(), conflicts: 0}
	m := NewMachine(flaky, discard())

	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	// One conflict: the retry lands the update.
	flaky.conflicts = 1
	s, err := m.Advance("conv-1", "plan")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentStepIndex)
}

func TestMachine_RepeatedConflictDropsUpdate(t *testing.T) {
	flaky := &flakyStore{Store: NewMemoryStore(), conflicts: 0}
	m := NewMachine(flaky, discard())

	_, err := m.Begin("conv-1", testDefinition(), false, DefaultTTL)
	require.NoError(t, err)

	// Two conflicts: the update is dropped, last writer wins, and the
	// caller still gets the stored state rather than an error.
	flaky.conflicts = 2
	s, err := m.Advance("conv-1", "plan")
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentStepIndex)
}
