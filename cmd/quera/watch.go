package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rawewhat/quera/crud"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "watch <collection>",
		Short: "Print every snapshot of a live query",
		Long: `Watch subscribes to a collection, optionally narrowed by --filter, and
prints one JSON array of records per snapshot until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var (
				mu  sync.Mutex
				out = cmd.OutOrStdout()
			)
			emit := func(records []crud.Record) {
				b, err := json.Marshal(records)
				if err != nil {
					opts.logger.Error("encode snapshot", "error", err.Error())
					return
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(out, string(b))
			}

			a, err := crud.New(opts.client, args[0],
				crud.WithFilter(filter),
				crud.WithLogger(opts.logger),
				crud.WithOnChange(emit),
			)
			if err != nil {
				return err
			}
			defer a.Close()

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", `filter expression, e.g. "?age > 21"`)
	return cmd
}
