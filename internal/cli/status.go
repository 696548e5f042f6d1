package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"flowgate/internal/session"
)

var (
	statusPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				Padding(0, 2)

	statusTitleStyle = lipgloss.NewStyle().Bold(true)

	statusDimStyle = lipgloss.NewStyle().Faint(true)

	statusCurrentStyle = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.Color("6"))

	statusDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))
)

func newStatusCommand(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session's workflow progress and todos",
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
			if s == nil {
				fmt.Fprintln(app.Stdout, "No active session.")
				return nil
			}

			fmt.Fprintln(app.Stdout, statusPanelStyle.Render(renderStatus(app, s)))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to show")
	return cmd
}

// renderStatus builds the panel body for one session record.
func renderStatus(app *App, s *session.Session) string {
	var b strings.Builder

	title := "Ad-hoc tasks"
	if s.WorkflowID != "" {
		title = s.WorkflowID
		if def, ok := app.Catalog.Workflow(s.WorkflowID); ok {
			title = def.Name
		}
	}
	b.WriteString(statusTitleStyle.Render(title))
	if s.State == session.StateAwaitingConfirmation {
		b.WriteString(statusDimStyle.Render("  (awaiting confirmation)"))
	}
	b.WriteString("\n")

	skipped := make(map[string]int)
	for _, id := range s.SkippedSteps {
		skipped[id]++
	}

	for i, id := range s.Sequence {
		display := app.Catalog.DisplayName(id)
		line := fmt.Sprintf("%d. %s", i+1, display)
		switch {
		case i == s.CurrentStepIndex:
			line = statusCurrentStyle.Render("> " + line)
		case i < s.CurrentStepIndex && skipped[id] > 0:
			skipped[id]--
			line = statusDimStyle.Render("- " + line + " (skipped)")
		case i < s.CurrentStepIndex:
			line = statusDoneStyle.Render("x " + line)
		default:
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(s.Todos) > 0 {
		b.WriteString("\n")
		b.WriteString(statusTitleStyle.Render("Todos"))
		b.WriteString("\n")
		for i, t := range s.Todos {
			line := fmt.Sprintf("%d. %s", i+1, t.Content)
			switch t.Status {
			case session.TodoCompleted:
				line = statusDoneStyle.Render("x " + line)
			case session.TodoInProgress:
				line = statusCurrentStyle.Render("> " + line)
			default:
				line = "  " + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(statusDimStyle.Render(fmt.Sprintf("updated %s", s.LastUpdatedAt.Format("2006-01-02 15:04:05"))))
	return b.String()
}
