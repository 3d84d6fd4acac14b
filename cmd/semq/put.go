package main

import (
	"fmt"
	"io"
	"strings"

	pb "github.com/kapetan-io/semq/proto"
	"github.com/spf13/cobra"
)

func newPutCommand(flags *FlagParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [flags] <queue-name>",
		Short: "Put an item into a queue",
		Long: `Put an item into a queue. By default, reads the item from stdin.
Use --item to provide the item directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item := flags.Item
			if !cmd.Flags().Changed("item") {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				item = strings.TrimRight(string(b), "\r\n")
			}

			b, done, err := newBackend(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			var resp pb.Item
			req := &pb.QueuePutRequest{
				MetastorePath: flags.MetastorePath,
				ItemHashing:   flags.ItemHashing,
				Name:          args[0],
				Item:          item,
			}
			if err := b.QueuePut(cmd.Context(), req, &resp); err != nil {
				return fmt.Errorf("failed to put item: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), &resp)
		},
	}
	cmd.Flags().StringVarP(&flags.Item, "item", "i", "", "Item to put (if not provided, reads from stdin)")
	cmd.Flags().BoolVar(&flags.ItemHashing, "hashing", false, "Derive the item id from the item content")
	return cmd
}
