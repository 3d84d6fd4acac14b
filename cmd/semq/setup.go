package main

import (
	"fmt"

	pb "github.com/kapetan-io/semq/proto"
	"github.com/spf13/cobra"
)

func newSetupCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "setup <queue-name>",
		Short: "Create the queue directory and trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, done, err := newBackend(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			req := &pb.QueueSetupRequest{Name: args[0], MetastorePath: flags.MetastorePath}
			if err := b.QueueSetup(cmd.Context(), req); err != nil {
				return fmt.Errorf("failed to setup queue: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Queue '%s' is ready\n", args[0])
			return nil
		},
	}
}

func newCleanupCommand(flags *FlagParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [flags] <queue-name>",
		Short: "Soft delete consumed partition files",
		Long: `Soft delete partition and request files which have been fully consumed.
With --everything the queue directory and all unconsumed items are removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, done, err := newBackend(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			req := &pb.QueueCleanupRequest{
				MetastorePath: flags.MetastorePath,
				Everything:    flags.Everything,
				Name:          args[0],
			}
			if err := b.QueueCleanup(cmd.Context(), req); err != nil {
				return fmt.Errorf("failed to cleanup queue: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.Everything, "everything", false,
		"Remove the entire queue directory")
	return cmd
}

func newDiscoverCommand(flags *FlagParams) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the queues in the metastore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, done, err := newBackend(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			var resp pb.QueuesDiscoverResponse
			req := &pb.QueuesDiscoverRequest{MetastorePath: flags.MetastorePath}
			if err := b.QueuesDiscover(cmd.Context(), req, &resp); err != nil {
				return fmt.Errorf("failed to discover queues: %w", err)
			}
			if err := printJSON(cmd.OutOrStdout(), &resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Found %d queue(s)\n", len(resp.Queues))
			return nil
		},
	}
}
