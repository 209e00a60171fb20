package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/recera/reflow/cmd/reflow/internal/ui"
	"github.com/spf13/cobra"
)

func newWatchCommand(env *environment) *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "watch [markup]",
		Short: "Render again whenever the markup, state or script change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, env, args, flags, cmd.OutOrStdout())
		},
	}
	flags.bind(cmd)

	return cmd
}

func runWatch(ctx context.Context, env *environment, args []string, flags renderFlags, w io.Writer) error {
	markup, state, script := env.inputs(args, flags.state, flags.script)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch directories rather than files so editors that replace files
	// on save keep being seen.
	files := make(map[string]bool)
	for _, p := range []string{markup, state, script} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
	}

	render := func() {
		fmt.Fprintln(w, ui.Title("── "+time.Now().Format("15:04:05")+" "+markup))
		if err := runRender(env, args, flags, w); err != nil {
			env.logger.Error("render failed", "err", err)
		}
	}
	render()

	return watchFiles(ctx, watcher, files, env.cfg.Watch.Debounce, func(events []fsnotify.Event) {
		env.logger.Debug("files changed", "events", len(events))
		render()
	})
}

// watchFiles calls onChange with the batched events for files once no
// new event arrived for the debounce period.
func watchFiles(ctx context.Context, watcher *fsnotify.Watcher, files map[string]bool, debounce time.Duration, onChange func([]fsnotify.Event)) error {
	timer := time.NewTimer(0)
	<-timer.C // drain initial timer

	var pending []fsnotify.Event
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(event.Name)] || event.Op == fsnotify.Chmod {
				continue
			}
			pending = append(pending, event)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)

		case <-timer.C:
			if len(pending) > 0 {
				events := pending
				pending = nil
				onChange(events)
			}
		}
	}
}
