package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/recera/reflow/cmd/reflow/internal/ui"
	"github.com/spf13/cobra"
)

func newPlayCommand(env *environment) *cobra.Command {
	var state, script string

	cmd := &cobra.Command{
		Use:   "play [markup]",
		Short: "Drive a mounted template interactively",
		Long: `Opens a terminal screen showing the rendered tree and the directive
failures of the last command. Commands:

  set name=value ...      write values into the root scope
  fire <selector> <event> dispatch an event at the first match
  quit                    leave`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markup, statePath, scriptPath := env.inputs(args, state, script)
			// The screen owns the terminal, so logs only go to the log file.
			s, err := env.load("play", markup, statePath, scriptPath, env.options(env.quietLogger()))
			if err != nil {
				return err
			}
			defer s.Close()

			p := tea.NewProgram(ui.NewModel(markup, s), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "YAML file seeding the root scope")
	cmd.Flags().StringVar(&script, "script", "", "YAML list of actions applied before the screen opens")

	return cmd
}
