package semq_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/duh-rpc/duh-go"
	"github.com/duh-rpc/duh-go/retry"
	"github.com/kapetan-io/semq"
	pb "github.com/kapetan-io/semq/proto"
	"github.com/kapetan-io/semq/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	d, c, ctx := newDaemon(t, 20*clock.Second, semq.ServiceConfig{PartitionMaxSize: 3})
	defer d.Shutdown(t)

	t.Run("PutGetAcrossPartitions", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))

		var items []string
		for i := 0; i < 7; i++ {
			items = append(items, fmt.Sprintf("item-%d", i))
		}

		var partitions []string
		for _, item := range items {
			var resp pb.Item
			require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: item}, &resp))
			assert.Equal(t, item, resp.Item)
			assert.NotEmpty(t, resp.ItemID)
			assert.NotEmpty(t, resp.ItemCreatedAt)
			partitions = append(partitions, resp.PartitionFilepath)
		}
		// Seven items with a max of three per partition
		assert.Equal(t, partitions[0], partitions[2])
		assert.NotEqual(t, partitions[2], partitions[3])
		assert.NotEqual(t, partitions[5], partitions[6])

		var size pb.QueueSizeResponse
		require.NoError(t, c.QueueSize(ctx, &pb.QueueSizeRequest{Name: name}, &size))
		assert.Equal(t, 3, size.ActivePartitionFiles)
		assert.False(t, size.IncludesItems)

		for i, item := range items {
			var resp pb.QueueGetResponse
			require.NoError(t, c.QueueGet(ctx, &pb.QueueGetRequest{Name: name, Fail: true}, &resp))
			assert.True(t, resp.Found)
			assert.Equal(t, item, resp.Item)
			require.NotNil(t, resp.Record)
			assert.Equal(t, partitions[i], resp.Record.PartitionFilepath)
			assert.NotEmpty(t, resp.Record.ItemRequestID)
			assert.NotEmpty(t, resp.Record.ItemRetrievedAt)
			assert.Equal(t, filepath.Dir(partitions[i]), filepath.Dir(resp.Record.ItemRequestFile))
		}
	})

	t.Run("EmptyQueue", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))

		var resp pb.QueueGetResponse
		require.NoError(t, c.QueueGet(ctx, &pb.QueueGetRequest{Name: name, WaitSeconds: -1}, &resp))
		assert.False(t, resp.Found)
		assert.Nil(t, resp.Record)

		err := c.QueueGet(ctx, &pb.QueueGetRequest{Name: name, WaitSeconds: -1, Fail: true}, &resp)
		require.Error(t, err)
		var e duh.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, duh.CodeRequestFailed, e.Code())
		assert.True(t, transport.IsQueueEmpty(err))
	})

	t.Run("WaitingGetReceivesPut", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))

		done := make(chan pb.QueueGetResponse)
		go func() {
			var resp pb.QueueGetResponse
			assert.NoError(t, c.QueueGet(ctx, &pb.QueueGetRequest{Name: name, WaitSeconds: 2}, &resp))
			done <- resp
		}()

		time.Sleep(200 * time.Millisecond)
		var item pb.Item
		require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: "late-arrival"}, &item))

		select {
		case resp := <-done:
			assert.True(t, resp.Found)
			assert.Equal(t, "late-arrival", resp.Item)
			assert.Equal(t, item.ItemID, resp.Record.ItemID)
		case <-clock.After(5 * clock.Second):
			t.Fatal("timed out waiting for get")
		}
	})

	t.Run("ExcludeMetadata", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))
		require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: "bare"}, &pb.Item{}))

		var resp pb.QueueGetResponse
		require.NoError(t, c.QueueGet(ctx, &pb.QueueGetRequest{Name: name, ExcludeMetadata: true}, &resp))
		assert.True(t, resp.Found)
		assert.Equal(t, "bare", resp.Item)
		assert.Nil(t, resp.Record)
	})

	t.Run("ItemHashing", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))

		var first, second, plain pb.Item
		require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: "same", ItemHashing: true}, &first))
		require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: "same", ItemHashing: true}, &second))
		require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: "same"}, &plain))
		assert.Equal(t, first.ItemID, second.ItemID)
		assert.NotEqual(t, first.ItemID, plain.ItemID)
	})

	t.Run("SizeAccounting", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))
		for i := 0; i < 5; i++ {
			require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: fmt.Sprintf("%d", i)}, &pb.Item{}))
		}
		for i := 0; i < 2; i++ {
			var resp pb.QueueGetResponse
			require.NoError(t, c.QueueGet(ctx, &pb.QueueGetRequest{Name: name}, &resp))
			require.True(t, resp.Found)
		}

		var size pb.QueueSizeResponse
		require.NoError(t, c.QueueSize(ctx, &pb.QueueSizeRequest{Name: name, IncludeItems: true}, &size))
		assert.True(t, size.IncludesItems)
		assert.Equal(t, 5, size.TotalItems)
		assert.Equal(t, 2, size.TotalRequests)
		assert.Equal(t, 3, size.TotalPending)
		assert.NotEmpty(t, size.Timestamp)

		require.NoError(t, c.QueueSize(ctx, &pb.QueueSizeRequest{Name: name, IncludeItems: true,
			IgnoreRequests: true}, &size))
		assert.Equal(t, 5, size.TotalItems)
		assert.Equal(t, 0, size.TotalRequests)
		assert.Equal(t, 5, size.TotalPending)
	})

	t.Run("Cleanup", func(t *testing.T) {
		name := random.String("queue-", 10)
		require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))
		require.NoError(t, c.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: "keep"}, &pb.Item{}))

		// Calling cleanup twice in a row is not an error
		require.NoError(t, c.QueueCleanup(ctx, &pb.QueueCleanupRequest{Name: name}))
		require.NoError(t, c.QueueCleanup(ctx, &pb.QueueCleanupRequest{Name: name}))

		var size pb.QueueSizeResponse
		require.NoError(t, c.QueueSize(ctx, &pb.QueueSizeRequest{Name: name, IncludeItems: true}, &size))
		assert.Equal(t, 1, size.TotalPending)

		require.NoError(t, c.QueueCleanup(ctx, &pb.QueueCleanupRequest{Name: name, Everything: true}))
		require.NoError(t, c.QueueSize(ctx, &pb.QueueSizeRequest{Name: name, IncludeItems: true}, &size))
		assert.Equal(t, 0, size.ActivePartitionFiles)
		assert.Equal(t, 0, size.TotalItems)

		var resp pb.QueueGetResponse
		require.NoError(t, c.QueueGet(ctx, &pb.QueueGetRequest{Name: name}, &resp))
		assert.False(t, resp.Found)
	})

	t.Run("Validation", func(t *testing.T) {
		for _, test := range []struct {
			name string
			req  *pb.QueuePutRequest
			msg  string
		}{
			{
				name: "MissingName",
				req:  &pb.QueuePutRequest{Item: "x"},
				msg:  "name",
			},
			{
				name: "NameIsPath",
				req:  &pb.QueuePutRequest{Name: "../escape", Item: "x"},
				msg:  "name",
			},
			{
				name: "MetastoreDoesNotExist",
				req: &pb.QueuePutRequest{Name: "q", Item: "x",
					MetastorePath: filepath.Join(os.TempDir(), random.String("missing-", 10))},
				msg: "metastore",
			},
		} {
			t.Run(test.name, func(t *testing.T) {
				err := c.QueuePut(ctx, test.req, &pb.Item{})
				require.Error(t, err)
				var e duh.Error
				require.ErrorAs(t, err, &e)
				assert.Equal(t, duh.CodeBadRequest, e.Code())
				assert.Contains(t, e.Message(), test.msg)
			})
		}
	})

	t.Run("Discover", func(t *testing.T) {
		root := t.TempDir()
		for _, name := range []string{"a", "b"} {
			require.NoError(t, c.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name, MetastorePath: root}))
		}

		var resp pb.QueuesDiscoverResponse
		require.NoError(t, c.QueuesDiscover(ctx, &pb.QueuesDiscoverRequest{MetastorePath: root}, &resp))
		require.Len(t, resp.Queues, 2)

		var names []string
		for _, q := range resp.Queues {
			names = append(names, q.Name)
			assert.Equal(t, filepath.Join(root, q.Name), q.Path)
			assert.NotEmpty(t, q.CreatedAt)
			assert.NotEmpty(t, q.UpdatedAt)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, names)
	})
}

// TestSharedMetastore runs two daemons against the same metastore, which is how separate
// processes on the same host share a queue.
func TestSharedMetastore(t *testing.T) {
	root := t.TempDir()
	producer, pc, ctx := newDaemon(t, 20*clock.Second, semq.ServiceConfig{MetastorePath: root})
	defer producer.Shutdown(t)
	consumer, cc, _ := newDaemon(t, 20*clock.Second, semq.ServiceConfig{MetastorePath: root})
	defer consumer.Shutdown(t)

	name := random.String("queue-", 10)
	require.NoError(t, pc.QueueSetup(ctx, &pb.QueueSetupRequest{Name: name}))
	for i := 0; i < 10; i++ {
		require.NoError(t, pc.QueuePut(ctx, &pb.QueuePutRequest{Name: name, Item: fmt.Sprintf("%d", i)}, &pb.Item{}))
	}

	seen := make(map[string]bool)
	for len(seen) < 10 {
		err := retry.On(ctx, RetryTenTimes, func(ctx context.Context, i int) error {
			// Alternate consumers, each item must be delivered exactly once
			c := cc
			if len(seen)%2 == 0 {
				c = pc
			}
			var resp pb.QueueGetResponse
			if err := c.QueueGet(ctx, &pb.QueueGetRequest{Name: name}, &resp); err != nil {
				return err
			}
			if !resp.Found {
				return fmt.Errorf("no item found")
			}
			if seen[resp.Item] {
				t.Fatalf("item '%s' delivered twice", resp.Item)
			}
			seen[resp.Item] = true
			return nil
		})
		require.NoError(t, err)
	}

	var resp pb.QueueGetResponse
	require.NoError(t, cc.QueueGet(ctx, &pb.QueueGetRequest{Name: name}, &resp))
	assert.False(t, resp.Found)
}
