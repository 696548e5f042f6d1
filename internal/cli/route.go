package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowgate/internal/hook"
)

func newRouteCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route one host event from stdin",
		Long: `Read a single JSON event from stdin, classify the user's request
against the workflow catalog, advance or create the session as needed, and
print the guidance block on stdout.

The event shape is:
  {"sessionId": "...", "text": "...", "priorAction": {"actionId": "...", "outcome": "success"}}

route always exits 0. Internal errors are logged to stderr and degrade to
empty guidance; they are never allowed to stall the host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := hook.ReadEvent(app.Stdin)
			if err != nil {
				app.Logger.Warn("unreadable input event", "error", err.Error())
				return nil
			}

			g := app.Router.Route(ev)

			if asJSON {
				if err := g.WriteJSON(app.Stdout); err != nil {
					app.Logger.Warn("guidance write failed", "error", err.Error())
				}
				return nil
			}
			if out := g.Render(); out != "" {
				fmt.Fprint(app.Stdout, out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit guidance as a JSON line instead of text")
	return cmd
}
