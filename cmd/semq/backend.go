package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kapetan-io/semq"
	"github.com/kapetan-io/semq/config"
	"github.com/kapetan-io/semq/daemon"
	pb "github.com/kapetan-io/semq/proto"
)

// Backend is implemented by both the local semq.Service and the remote semq.Client
type Backend interface {
	QueueSetup(context.Context, *pb.QueueSetupRequest) error
	QueueCleanup(context.Context, *pb.QueueCleanupRequest) error
	QueuePut(context.Context, *pb.QueuePutRequest, *pb.Item) error
	QueueGet(context.Context, *pb.QueueGetRequest, *pb.QueueGetResponse) error
	QueueSize(context.Context, *pb.QueueSizeRequest, *pb.QueueSizeResponse) error
	QueuesDiscover(context.Context, *pb.QueuesDiscoverRequest, *pb.QueuesDiscoverResponse) error
}

var (
	_ Backend = &semq.Service{}
	_ Backend = &semq.Client{}
)

// loadConfig builds the daemon config from the config file, the environment and the
// command line flags, in increasing order of precedence.
func loadConfig(ctx context.Context, flags *FlagParams, w io.Writer) (daemon.Config, error) {
	var file config.File
	if flags.ConfigFile != "" {
		var err error
		if file, err = config.LoadFile(flags.ConfigFile); err != nil {
			return daemon.Config{}, fmt.Errorf("while reading config file: %w", err)
		}
	}

	if flags.MetastorePath != "" {
		file.MetastorePath = flags.MetastorePath
	}
	if flags.PartitionSize != 0 {
		file.PartitionSize = flags.PartitionSize
	}

	if err := config.LoadEnv(&file, ".env"); err != nil {
		return daemon.Config{}, err
	}

	var conf daemon.Config
	if err := config.ApplyConfigFile(ctx, &conf, file, w); err != nil {
		return daemon.Config{}, fmt.Errorf("while applying config file: %w", err)
	}
	conf.Version = Version
	conf.ServiceConfig.Version = Version
	return conf, nil
}

// newBackend returns a client if an endpoint was provided, else a service operating on the
// local metastore. The returned func must be called when the backend is no longer needed.
func newBackend(ctx context.Context, flags *FlagParams, w io.Writer) (Backend, func(), error) {
	if flags.Endpoint != "" {
		c, err := semq.NewClient(semq.ClientConfig{Endpoint: flags.Endpoint})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create client: %w", err)
		}
		return c, func() {}, nil
	}

	conf, err := loadConfig(ctx, flags, w)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(conf.MetastorePath, 0755); err != nil {
		return nil, nil, fmt.Errorf("while creating metastore path: %w", err)
	}

	s, err := semq.NewService(conf.ServiceConfig)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Shutdown(context.Background()); err != nil {
			conf.Log.Error("during shutdown", "error", err)
		}
	}, nil
}

// printJSON writes the message as indented JSON
func printJSON(w io.Writer, msg pb.Message) error {
	s, err := msg.ToStruct()
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	b, err := json.MarshalIndent(s.AsMap(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
