package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGateCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "gate <action-id>",
		Short: "Decide whether an action may proceed",
		Long: `Check the requested action against the enforcement gate and print a
structured decision:

  {"decision":"allow"}
  {"decision":"block","reason":"..."}

Implementation-class actions are blocked while the session has no pending or
in-progress todo. Research and planning actions, unknown action ids, and any
action under bypass are always allowed.

gate always exits 0, for allow and block alike; the host acts on the printed
decision, not the exit code.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionID := args[0]

			hasTodos := false
			bypass := bypassFromEnv()

			if sessionID != "" {
				s, err := app.Machine.Current(sessionID)
				if err != nil {
					app.Logger.Warn("session read failed, gating without todo state",
						"session", sessionID, "error", err.Error())
				} else if s != nil {
					hasTodos = s.HasTodos()
					bypass = bypass || s.BypassTurn
				}
			}

			decision := app.Gate.Check(actionID, hasTodos, bypass)

			out, err := json.Marshal(decision)
			if err != nil {
				app.Logger.Warn("decision marshal failed", "error", err.Error())
				fmt.Fprintln(app.Stdout, `{"decision":"allow"}`)
				return nil
			}
			fmt.Fprintln(app.Stdout, string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id whose todo state gates the action")
	return cmd
}
