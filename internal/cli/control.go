package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"flowgate/internal/session"
)

// requireSession validates the --session flag for operator commands that
// target a specific session record.
func requireSession(sessionID string) error {
	if sessionID == "" {
		return errors.New("--session is required")
	}
	return nil
}

func newAdvanceCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "advance <step-id>",
		Short: "Record completion of the current step",
		Long: `Record that the named step completed and advance the session to the
next step. Completing a step out of order is refused with a warning and
leaves the session unchanged; use skip to move past a step deliberately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}

			s, err := app.Machine.Advance(sessionID, args[0])
			if err != nil {
				if errors.Is(err, session.ErrNoSession) {
					fmt.Fprintln(app.Stdout, "No active session.")
					return nil
				}
				app.Logger.Warn("advance failed", "error", err.Error())
				return NewExitError(1)
			}

			if s.Completed() {
				fmt.Fprintf(app.Stdout, "Workflow %s complete.\n", s.WorkflowID)
				return nil
			}
			step, _ := s.CurrentStep()
			fmt.Fprintf(app.Stdout, "Advanced to step %d/%d: %s\n",
				s.CurrentStepIndex+1, len(s.Sequence), app.Catalog.DisplayName(step))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to advance")
	return cmd
}

func newSkipCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Skip the current step without completing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}

			s, err := app.Machine.Skip(sessionID)
			if err != nil {
				if errors.Is(err, session.ErrNoSession) {
					fmt.Fprintln(app.Stdout, "No active session.")
					return nil
				}
				app.Logger.Warn("skip failed", "error", err.Error())
				return NewExitError(1)
			}

			if s.Completed() {
				fmt.Fprintf(app.Stdout, "Workflow %s complete.\n", s.WorkflowID)
				return nil
			}
			step, _ := s.CurrentStep()
			fmt.Fprintf(app.Stdout, "Skipped to step %d/%d: %s\n",
				s.CurrentStepIndex+1, len(s.Sequence), app.Catalog.DisplayName(step))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to skip in")
	return cmd
}

func newConfirmCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a workflow awaiting confirmation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}

			s, err := app.Machine.Confirm(sessionID)
			if err != nil {
				if errors.Is(err, session.ErrNoSession) {
					fmt.Fprintln(app.Stdout, "No active session.")
					return nil
				}
				if errors.Is(err, session.ErrNotAwaiting) {
					fmt.Fprintln(app.Stdout, "Session is not awaiting confirmation.")
					return nil
				}
				app.Logger.Warn("confirm failed", "error", err.Error())
				return NewExitError(1)
			}

			step, _ := s.CurrentStep()
			fmt.Fprintf(app.Stdout, "Workflow %s confirmed. Next step: %s\n",
				s.WorkflowID, app.Catalog.DisplayName(step))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to confirm")
	return cmd
}

func newAbortCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort the active workflow and discard its session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}
			if err := app.Machine.Abort(sessionID); err != nil {
				app.Logger.Warn("abort failed", "error", err.Error())
				return NewExitError(1)
			}
			fmt.Fprintln(app.Stdout, "Workflow aborted.")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to abort")
	return cmd
}

func newClearCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the session record, workflow and todos alike",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}
			if err := app.Machine.Clear(sessionID); err != nil {
				app.Logger.Warn("clear failed", "error", err.Error())
				return NewExitError(1)
			}
			fmt.Fprintln(app.Stdout, "Session cleared.")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to clear")
	return cmd
}
