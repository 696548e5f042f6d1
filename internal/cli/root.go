package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// ExecuteResult reports the outcome of one CLI run for callers that must not
// os.Exit, i.e. tests.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// newRootCommand builds the command tree around the injected [App].
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgate",
		Short: "Workflow intent detection and orchestration router",
		Long: `flowgate inspects free-text user requests, scores them against a
configured workflow catalog, tracks the active workflow's progress across
turns, and gates implementation-class actions on tracked work.

It is designed to sit behind an AI coding assistant's hook runner: the host
delivers one JSON event per turn on stdin and injects the guidance flowgate
prints on stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRouteCommand(app),
		newGateCommand(app),
		newServeCommand(app),
		newStatusCommand(app),
		newConfirmCommand(app),
		newAdvanceCommand(app),
		newSkipCommand(app),
		newAbortCommand(app),
		newClearCommand(app),
		newTodoCommand(app),
	)

	return root
}

// RunWithConfig executes the CLI with the given app and arguments, returning
// the result instead of exiting. This is the testable entry point.
func RunWithConfig(app *App, args []string) ExecuteResult {
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)

	if err := root.Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{ExitCode: 0}
}

// Execute runs the CLI with production wiring and exits the process.
func Execute() {
	result := RunWithConfig(NewApp(), os.Args[1:])
	os.Exit(result.ExitCode)
}
