package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kapetan-io/semq/transport"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev-build"

const (
	ExitOK = iota
	ExitError
	ExitQueueEmpty
)

type FlagParams struct {
	ConfigFile    string
	MetastorePath string
	PartitionSize int
	Endpoint      string

	// Command specific flags
	Everything      bool
	Item            string
	ItemHashing     bool
	WaitSeconds     int
	Fail            bool
	ExcludeMetadata bool
	IncludeItems    bool
	IgnoreRequests  bool
	Table           bool
}

func main() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// Run executes the command line and returns the process exit code
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var flags FlagParams
	root := NewRootCommand(&flags)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %s\n", err)
		if transport.IsQueueEmpty(err) {
			return ExitQueueEmpty
		}
		return ExitError
	}
	return ExitOK
}

func NewRootCommand(flags *FlagParams) *cobra.Command {
	root := &cobra.Command{
		Use:   "semq",
		Short: "A simple filesystem backed message queue",
		Long: `semq stores queues as directories of JSON line partition files.

Commands operate on the local metastore directly, unless --endpoint is provided in
which case commands are sent to a running semq server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigFile, "config", "", "YAML config file")
	pf.StringVar(&flags.MetastorePath, "metastore-path", "",
		"Directory queues are stored in (default $HOME/.semq/metastore)")
	pf.IntVar(&flags.PartitionSize, "partition-size", 0,
		"Maximum number of items per partition file, ignored when --endpoint is provided")
	pf.StringVar(&flags.Endpoint, "endpoint", "",
		"semq server endpoint, for example http://localhost:2319")

	root.AddCommand(
		newServerCommand(flags),
		newSetupCommand(flags),
		newCleanupCommand(flags),
		newDiscoverCommand(flags),
		newPutCommand(flags),
		newGetCommand(flags),
		newSizeCommand(flags),
	)
	return root
}
