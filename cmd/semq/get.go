package main

import (
	"fmt"

	pb "github.com/kapetan-io/semq/proto"
	"github.com/spf13/cobra"
)

func newGetCommand(flags *FlagParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [flags] <queue-name>",
		Short: "Get the next item from a queue",
		Long: `Get the next item from a queue.

With --wait N the command does not return until an item is available, checking the
queue at least every N seconds. With --fail an empty queue is an error and the
command exits with status 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, done, err := newBackend(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			var resp pb.QueueGetResponse
			req := &pb.QueueGetRequest{
				ExcludeMetadata: flags.ExcludeMetadata,
				MetastorePath:   flags.MetastorePath,
				WaitSeconds:     flags.WaitSeconds,
				Fail:            flags.Fail,
				Name:            args[0],
			}
			if err := b.QueueGet(cmd.Context(), req, &resp); err != nil {
				return fmt.Errorf("failed to get item: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), &resp)
		},
	}
	cmd.Flags().IntVar(&flags.WaitSeconds, "wait", -1,
		"Seconds between checks while waiting for an item, less than one returns immediately")
	cmd.Flags().BoolVar(&flags.Fail, "fail", false, "Return an error if the queue is empty")
	cmd.Flags().BoolVar(&flags.ExcludeMetadata, "exclude-metadata", false,
		"Return only the item instead of the full item record")
	return cmd
}
