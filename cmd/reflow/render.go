package main

import (
	"fmt"
	"io"
	"os"

	"github.com/recera/reflow/cmd/reflow/internal/ui"
	"github.com/recera/reflow/pkg/diag"
	rhtml "github.com/recera/reflow/pkg/renderer/html"
	"github.com/spf13/cobra"
)

type renderFlags struct {
	state        string
	script       string
	indent       string
	placeholders bool
	strict       bool
}

func (f *renderFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.state, "state", "s", "", "YAML file seeding the root scope")
	cmd.Flags().StringVar(&f.script, "script", "", "YAML list of set/dispatch actions to apply")
	cmd.Flags().StringVar(&f.indent, "indent", "", "Indent nested elements with this string")
	cmd.Flags().BoolVar(&f.placeholders, "placeholders", false, "Keep the comment placeholders of :if and :each")
}

func newRenderCommand(env *environment) *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render [markup]",
		Short: "Mount a template, apply a script and print the tree",
		Long: `Mounts the markup against the state file, applies the actions of the
script in order and prints the resulting tree. Directive failures are
printed to stderr; with --strict they also fail the command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(env, args, flags, cmd.OutOrStdout())
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Exit non-zero when any directive failed")

	return cmd
}

func runRender(env *environment, args []string, flags renderFlags, w io.Writer) error {
	markup, state, script := env.inputs(args, flags.state, flags.script)

	var failed int
	count := func(errs []*diag.Error) { failed += len(errs) }
	s, err := env.load("render", markup, state, script, env.options(env.logger, ui.Sink(os.Stderr), count))
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.Render(rhtml.Options{Indent: flags.indent, Placeholders: flags.placeholders})
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)
	if flags.indent == "" {
		fmt.Fprintln(w)
	}

	if flags.strict && failed > 0 {
		return fmt.Errorf("%d directive failures", failed)
	}
	return nil
}
