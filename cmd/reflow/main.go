package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	env := &environment{}

	var rootCmd = &cobra.Command{
		Use:   "reflow",
		Short: "reflow - reactive directives over HTML trees",
		Long: `reflow mounts an HTML template whose elements carry directive attributes
(:if, :else, :each, :on, :text, ...) against a state object and keeps the
tree in sync as that state changes. The commands below drive a mounted tree
from scripts, file changes, a WebSocket or an interactive prompt.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return env.close()
		},
	}
	env.bindFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(newRenderCommand(env))
	rootCmd.AddCommand(newWatchCommand(env))
	rootCmd.AddCommand(newServeCommand(env))
	rootCmd.AddCommand(newPlayCommand(env))
	rootCmd.AddCommand(newCacheCommand(env))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		env.close()
		os.Exit(1)
	}
}
