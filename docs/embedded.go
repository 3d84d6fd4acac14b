/*
Copyright 2024 Derrick J. Wippler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kapetan-io/semq"
	"github.com/kapetan-io/semq/daemon"
	pb "github.com/kapetan-io/semq/proto"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := os.MkdirTemp("", "semq-embedded-")
	if err != nil {
		log.Fatalf("Failed to create metastore: %v", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	// Create daemon listening on localhost:2319 with a temporary metastore
	d, err := daemon.NewDaemon(ctx, daemon.Config{
		ServiceConfig: semq.ServiceConfig{MetastorePath: dir},
	})
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Get client for interacting with the embedded daemon
	client := d.MustClient()

	log.Printf("semq daemon started on %s", d.Listener.Addr().String())

	queueName := "example-queue"
	if err := client.QueueSetup(ctx, &pb.QueueSetupRequest{Name: queueName}); err != nil {
		log.Fatalf("Failed to setup queue: %v", err)
	}
	log.Printf("Setup queue: %s", queueName)

	// Put some items into the queue
	for _, item := range []string{"Hello from embedded semq!", "Second example item"} {
		var resp pb.Item
		if err := client.QueuePut(ctx, &pb.QueuePutRequest{Name: queueName, Item: item}, &resp); err != nil {
			log.Fatalf("Failed to put item: %v", err)
		}
		log.Printf("Put item %s into %s", resp.ItemID, resp.PartitionFilepath)
	}

	// Get items until the queue is empty
	for {
		var resp pb.QueueGetResponse
		if err := client.QueueGet(ctx, &pb.QueueGetRequest{Name: queueName}, &resp); err != nil {
			log.Fatalf("Failed to get item: %v", err)
		}
		if !resp.Found {
			break
		}
		log.Printf("Processing item %s: %s", resp.Record.ItemID, resp.Item)

		// Simulate some work
		time.Sleep(100 * time.Millisecond)
	}

	var size pb.QueueSizeResponse
	if err := client.QueueSize(ctx, &pb.QueueSizeRequest{Name: queueName, IncludeItems: true}, &size); err != nil {
		log.Fatalf("Failed to size queue: %v", err)
	}
	log.Println(pb.PPSize(&size))

	log.Println("Example completed successfully. Press Ctrl+C to shutdown.")

	// Keep the program running until shutdown signal
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
