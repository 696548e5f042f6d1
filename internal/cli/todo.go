package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"flowgate/internal/session"
)

func newTodoCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Manage the session's tracked work list",
		Long: `Add, complete, and list the todos that gate implementation-class
actions. Adding a todo to a session without an active workflow creates an
ad-hoc session, so direct task tracking works without intent detection.`,
	}

	cmd.AddCommand(
		newTodoAddCommand(app),
		newTodoDoneCommand(app),
		newTodoListCommand(app),
	)
	return cmd
}

func newTodoAddCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a pending todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}
			s, err := app.Machine.AddTodo(sessionID, args[0])
			if err != nil {
				app.Logger.Warn("todo add failed", "error", err.Error())
				return NewExitError(1)
			}
			fmt.Fprintf(app.Stdout, "Added todo %d.\n", len(s.Todos))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to add the todo to")
	return cmd
}

func newTodoDoneCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "done <number>",
		Short: "Mark a todo completed by its 1-based number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid todo number: %s", args[0])
			}

			_, err = app.Machine.SetTodoStatus(sessionID, n-1, session.TodoCompleted)
			if err != nil {
				if errors.Is(err, session.ErrNoSession) {
					fmt.Fprintln(app.Stdout, "No active session.")
					return nil
				}
				app.Logger.Warn("todo update failed", "error", err.Error())
				return NewExitError(1)
			}
			fmt.Fprintf(app.Stdout, "Completed todo %d.\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id holding the todo")
	return cmd
}

func newTodoListCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the session's todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireSession(sessionID); err != nil {
				return err
			}
			s, err := app.Machine.Current(sessionID)
			if err != nil {
				app.Logger.Warn("session read failed", "error", err.Error())
				return NewExitError(1)
			}
			if s == nil || len(s.Todos) == 0 {
				fmt.Fprintln(app.Stdout, "No todos.")
				return nil
			}
			for i, t := range s.Todos {
				marker := " "
				switch t.Status {
				case session.TodoInProgress:
					marker = ">"
				case session.TodoCompleted:
					marker = "x"
				}
				fmt.Fprintf(app.Stdout, "[%s] %d. %s\n", marker, i+1, t.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to list")
	return cmd
}
