package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/config"
	"flowgate/internal/gate"
	"flowgate/internal/router"
	"flowgate/internal/session"
)

type testStreams struct {
	stdin  *bytes.Buffer
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestApp() (*App, *testStreams) {
	logger := slog.New(slog.DiscardHandler)
	catalog := config.DefaultCatalog()
	machine := session.NewMachine(session.NewMemoryStore(), logger)

	streams := &testStreams{
		stdin:  &bytes.Buffer{},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}

	app := &App{
		Catalog: catalog,
		Machine: machine,
		Gate:    gate.New(logger),
		Router:  router.New(catalog, machine, logger),
		Logger:  logger,
		Stdin:   streams.stdin,
		Stdout:  streams.stdout,
		Stderr:  streams.stderr,
	}
	return app, streams
}

func TestRouteCommand_PrintsGuidance(t *testing.T) {
	app, streams := newTestApp()
	streams.stdin.WriteString(`{"sessionId":"conv-1","text":"Fix the login bug"}`)

	result := RunWithConfig(app, []string{"route"})

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "Bug Fix")
}

func TestRouteCommand_JSONOutput(t *testing.T) {
	app, streams := newTestApp()
	streams.stdin.WriteString(`{"sessionId":"conv-1","text":"Fix the login bug"}`)

	result := RunWithConfig(app, []string{"route", "--json"})
	require.Equal(t, 0, result.ExitCode)

	var g map[string]any
	require.NoError(t, json.Unmarshal(streams.stdout.Bytes(), &g))
	assert.Equal(t, "bugfix", g["workflowId"])
}

func TestRouteCommand_MalformedInputExitsZero(t *testing.T) {
	app, streams := newTestApp()
	streams.stdin.WriteString(`{torn`)

	result := RunWithConfig(app, []string{"route"})

	// The non-blocking contract: unreadable input degrades to silence.
	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, streams.stdout.String())
}

func TestRouteCommand_NoMatchIsSilent(t *testing.T) {
	app, streams := newTestApp()
	streams.stdin.WriteString(`{"sessionId":"conv-1","text":"what time is it"}`)

	result := RunWithConfig(app, []string{"route"})

	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, streams.stdout.String())
}

func TestGateCommand_BlocksWithoutTodos(t *testing.T) {
	app, streams := newTestApp()

	result := RunWithConfig(app, []string{"gate", "write"})
	require.Equal(t, 0, result.ExitCode, "gate exits 0 for block decisions too")

	var d map[string]any
	require.NoError(t, json.Unmarshal(streams.stdout.Bytes(), &d))
	assert.Equal(t, "block", d["decision"])
	assert.NotEmpty(t, d["reason"])
}

func TestGateCommand_AllowsWithPendingTodo(t *testing.T) {
	app, streams := newTestApp()
	_, err := app.Machine.AddTodo("conv-1", "wire the loader")
	require.NoError(t, err)

	result := RunWithConfig(app, []string{"gate", "write", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)

	var d map[string]any
	require.NoError(t, json.Unmarshal(streams.stdout.Bytes(), &d))
	assert.Equal(t, "allow", d["decision"])
}

func TestGateCommand_SessionBypassAllows(t *testing.T) {
	app, streams := newTestApp()
	def, ok := app.Catalog.Workflow("bugfix")
	require.True(t, ok)
	_, err := app.Machine.Begin("conv-1", def, false, session.DefaultTTL)
	require.NoError(t, err)
	require.NoError(t, app.Machine.SetBypass("conv-1", true))

	result := RunWithConfig(app, []string{"gate", "write", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)

	var d map[string]any
	require.NoError(t, json.Unmarshal(streams.stdout.Bytes(), &d))
	assert.Equal(t, "allow", d["decision"])
}

func TestGateCommand_EnvBypassAllows(t *testing.T) {
	t.Setenv(gate.EnvBypass, "1")
	app, streams := newTestApp()

	result := RunWithConfig(app, []string{"gate", "write"})
	require.Equal(t, 0, result.ExitCode)

	var d map[string]any
	require.NoError(t, json.Unmarshal(streams.stdout.Bytes(), &d))
	assert.Equal(t, "allow", d["decision"])
}

func TestGateCommand_ReadActionAllowed(t *testing.T) {
	app, streams := newTestApp()

	result := RunWithConfig(app, []string{"gate", "read"})
	require.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), `"decision":"allow"`)
}

func TestAdvanceCommand_RequiresSessionFlag(t *testing.T) {
	app, _ := newTestApp()

	result := RunWithConfig(app, []string{"advance", "plan"})
	assert.Equal(t, 1, result.ExitCode)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "--session")
}

func TestAdvanceCommand_NoSessionIsNotAnError(t *testing.T) {
	app, streams := newTestApp()

	result := RunWithConfig(app, []string{"advance", "plan", "--session", "nobody"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "No active session.")
}

func TestAdvanceCommand_MovesToNextStep(t *testing.T) {
	app, streams := newTestApp()
	def, ok := app.Catalog.Workflow("bugfix")
	require.True(t, ok)
	_, err := app.Machine.Begin("conv-1", def, false, session.DefaultTTL)
	require.NoError(t, err)

	result := RunWithConfig(app, []string{"advance", def.Sequence[0], "--session", "conv-1"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "Advanced to step 2/")
}

func TestSkipCommand_MovesPastCurrentStep(t *testing.T) {
	app, streams := newTestApp()
	def, ok := app.Catalog.Workflow("bugfix")
	require.True(t, ok)
	_, err := app.Machine.Begin("conv-1", def, false, session.DefaultTTL)
	require.NoError(t, err)

	result := RunWithConfig(app, []string{"skip", "--session", "conv-1"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "Skipped to step 2/")

	s, err := app.Machine.Current("conv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{def.Sequence[0]}, s.SkippedSteps)
}

func TestConfirmCommand_ActivatesProvisionalSession(t *testing.T) {
	app, streams := newTestApp()
	def, ok := app.Catalog.Workflow("bugfix")
	require.True(t, ok)
	_, err := app.Machine.Begin("conv-1", def, true, session.DefaultTTL)
	require.NoError(t, err)

	result := RunWithConfig(app, []string{"confirm", "--session", "conv-1"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "confirmed")

	s, err := app.Machine.Current("conv-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateActive, s.State)

	// Confirming an already active session reports rather than fails.
	streams.stdout.Reset()
	result = RunWithConfig(app, []string{"confirm", "--session", "conv-1"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "not awaiting")
}

func TestAbortCommand_DiscardsSession(t *testing.T) {
	app, streams := newTestApp()
	def, ok := app.Catalog.Workflow("bugfix")
	require.True(t, ok)
	_, err := app.Machine.Begin("conv-1", def, false, session.DefaultTTL)
	require.NoError(t, err)

	result := RunWithConfig(app, []string{"abort", "--session", "conv-1"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "Workflow aborted.")

	s, err := app.Machine.Current("conv-1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestTodoCommands_AddDoneList(t *testing.T) {
	app, streams := newTestApp()

	result := RunWithConfig(app, []string{"todo", "add", "wire the loader", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "Added todo 1.")

	streams.stdout.Reset()
	result = RunWithConfig(app, []string{"todo", "list", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "wire the loader")

	streams.stdout.Reset()
	result = RunWithConfig(app, []string{"todo", "done", "1", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "Completed todo 1.")

	s, err := app.Machine.Current("conv-1")
	require.NoError(t, err)
	assert.False(t, s.HasTodos())
}

func TestTodoDone_RejectsBadNumber(t *testing.T) {
	app, _ := newTestApp()

	result := RunWithConfig(app, []string{"todo", "done", "zero", "--session", "conv-1"})
	assert.Equal(t, 1, result.ExitCode)
}

func TestStatusCommand_NoSession(t *testing.T) {
	app, streams := newTestApp()

	result := RunWithConfig(app, []string{"status", "--session", "nobody"})
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, streams.stdout.String(), "No active session")
}

func TestStatusCommand_RendersPanel(t *testing.T) {
	app, streams := newTestApp()
	def, ok := app.Catalog.Workflow("bugfix")
	require.True(t, ok)
	_, err := app.Machine.Begin("conv-1", def, false, session.DefaultTTL)
	require.NoError(t, err)

	result := RunWithConfig(app, []string{"status", "--session", "conv-1"})
	assert.Equal(t, 0, result.ExitCode)
	out := streams.stdout.String()
	assert.Contains(t, out, def.Name)
	for _, step := range def.Sequence {
		assert.Contains(t, out, app.Catalog.DisplayName(step))
	}
}

func TestRootCommand_UnknownSubcommandFails(t *testing.T) {
	app, _ := newTestApp()

	result := RunWithConfig(app, []string{"frobnicate"})
	assert.Equal(t, 1, result.ExitCode)
}

func TestRouteThenGate_BypassIsTurnScoped(t *testing.T) {
	app, streams := newTestApp()

	// Override turn with no prior session: silent, and the bypass must
	// still reach the gate.
	streams.stdin.WriteString(`{"sessionId":"conv-1","text":"quick: add a button"}`)
	require.Equal(t, 0, RunWithConfig(app, []string{"route"}).ExitCode)
	assert.Empty(t, streams.stdout.String())

	result := RunWithConfig(app, []string{"gate", "write", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)
	assert.True(t, strings.Contains(streams.stdout.String(), `"decision":"allow"`))

	// The next routed turn clears the bypass; the gate blocks again.
	streams.stdin.WriteString(`{"sessionId":"conv-1","text":"Fix the login bug"}`)
	require.Equal(t, 0, RunWithConfig(app, []string{"route"}).ExitCode)

	streams.stdout.Reset()
	result = RunWithConfig(app, []string{"gate", "write", "--session", "conv-1"})
	require.Equal(t, 0, result.ExitCode)
	assert.True(t, strings.Contains(streams.stdout.String(), `"decision":"block"`))
}
