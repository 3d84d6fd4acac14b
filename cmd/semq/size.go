package main

import (
	"fmt"

	pb "github.com/kapetan-io/semq/proto"
	"github.com/spf13/cobra"
)

func newSizeCommand(flags *FlagParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size [flags] <queue-name>",
		Short: "Report the size of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, done, err := newBackend(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			var resp pb.QueueSizeResponse
			req := &pb.QueueSizeRequest{
				IgnoreRequests: flags.IgnoreRequests,
				MetastorePath:  flags.MetastorePath,
				IncludeItems:   flags.IncludeItems,
				Name:           args[0],
			}
			if err := b.QueueSize(cmd.Context(), req, &resp); err != nil {
				return fmt.Errorf("failed to size queue: %w", err)
			}

			if flags.Table {
				_, err := fmt.Fprint(cmd.OutOrStdout(), pb.SizeTable(args[0], &resp))
				return err
			}
			return printJSON(cmd.OutOrStdout(), &resp)
		},
	}
	cmd.Flags().BoolVar(&flags.IncludeItems, "include-items", false,
		"Count the items in every partition file")
	cmd.Flags().BoolVar(&flags.IgnoreRequests, "ignore-requests", false,
		"Do not count the items already requested")
	cmd.Flags().BoolVar(&flags.Table, "table", false, "Output a human readable table")
	return cmd
}
