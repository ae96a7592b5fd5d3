package main

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/rawewhat/quera/crud"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newReadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <collection> [selector]",
		Short: "Read a collection, a document or a filtered query",
		Long: `Read prints the result envelope as JSON. Without a selector the whole
collection is returned; a selector starting with "?" is a filter such as
"?age > 21"; anything else is a document id.

Example:
  quera read users
  quera read users u1
  quera read users '?age > 21'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var selector string
			if len(args) == 2 {
				selector = args[1]
			}

			ops, err := crud.New(opts.client, "", crud.WithLogger(opts.logger))
			if err != nil {
				return err
			}
			env := ops.Read(cmd.Context(), selector, crud.In(args[0]))

			out, err := json.Marshal(env)
			if err != nil {
				return fmt.Errorf("encode envelope: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if !env.OK() {
				return fmt.Errorf("read %s: %d %s", args[0], env.Code, env.Status)
			}
			return nil
		},
	}
}
