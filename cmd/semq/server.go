package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kapetan-io/semq/daemon"
	"github.com/spf13/cobra"
)

func newServerCommand(flags *FlagParams) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the semq daemon",
		Long: `Start the semq daemon server.

The server command starts the HTTP API server that handles queue operations.
Configuration can be provided via flags, SEMQ_* environment variables, or a config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunServer(cmd.Context(), flags, listen, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (default localhost:2319)")
	return cmd
}

func RunServer(ctx context.Context, flags *FlagParams, listen string, w io.Writer) error {
	conf, err := loadConfig(ctx, flags, w)
	if err != nil {
		return err
	}
	if listen != "" {
		conf.ListenAddress = listen
	}

	conf.Log.Info(fmt.Sprintf("semq %s (%s/%s)", Version, runtime.GOARCH, runtime.GOOS))
	d, err := daemon.NewDaemon(ctx, conf)
	if err != nil {
		return fmt.Errorf("while creating daemon: %w", err)
	}
	conf.Log.Info("Server Started", "address", d.Listener.Addr().String(),
		"metastore", conf.MetastorePath)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(c)
	select {
	case <-c:
		return d.Shutdown(context.Background())
	case <-ctx.Done():
		return d.Shutdown(context.Background())
	}
}
