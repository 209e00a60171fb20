package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recera/reflow/internal/session"
	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/live"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(env *environment) *cobra.Command {
	var (
		state string
		host  string
		port  int
	)

	cmd := &cobra.Command{
		Use:   "serve [markup]",
		Short: "Serve live sessions of a template over WebSocket",
		Long: `Every id seen under /live/{id} gets its own session mounted from the
markup and state. Clients send {"type":"dispatch","target":"#btn","event":"click"}
or {"type":"set","values":{...}} and receive the re-rendered tree with the
directive failures of the pass. GET /render/{id} returns the current tree.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				env.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				env.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, env, args, state)
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "YAML file seeding each session")
	cmd.Flags().StringVar(&host, "host", "localhost", "Host to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")

	return cmd
}

func runServe(ctx context.Context, env *environment, args []string, state string) error {
	markup, statePath, _ := env.inputs(args, state, "")
	if _, err := os.Stat(markup); err != nil {
		return err
	}

	factory := func(id string) (*session.Session, error) {
		logger := env.logger.With("session", id)
		return session.Load(id, markup, statePath, env.options(logger, diag.LogSink(logger)))
	}
	manager := live.NewManager(factory, env.logger)
	defer manager.Close()

	srv := &http.Server{
		Addr:              env.cfg.Addr(),
		Handler:           live.NewServer(manager, env.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		env.logger.Info("live server running", "url", fmt.Sprintf("ws://%s/live/{id}", srv.Addr), "markup", markup)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		idle := env.cfg.Server.IdleTimeout
		return manager.RunReaper(ctx, idle/2, idle)
	})
	g.Go(func() error {
		<-ctx.Done()
		env.logger.Info("shutting down live server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
