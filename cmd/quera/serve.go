package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rawewhat/quera/crud"
	"github.com/rawewhat/quera/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket bridge",
		Long: `Serve exposes CRUD routes under /collections/{collection}/docs and a
WebSocket feed at /ws that pushes live snapshots of subscribed queries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	_ = opts.v.BindPFlag(cfgKeyAddr, cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(parent context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(opts.client, opts.logger)
	go hub.Run()
	defer hub.Close()

	ops, err := crud.New(opts.client, "", crud.WithLogger(opts.logger))
	if err != nil {
		return err
	}

	addr := opts.v.GetString(cfgKeyAddr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(hub, ops),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	opts.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	opts.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
