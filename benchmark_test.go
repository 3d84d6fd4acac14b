package semq_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/kapetan-io/semq"
	"github.com/kapetan-io/semq/daemon"
	pb "github.com/kapetan-io/semq/proto"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/random"
	"github.com/stretchr/testify/require"
)

func BenchmarkPutGet(b *testing.B) {
	fmt.Printf("Current Operating System has '%d' CPUs\n", runtime.NumCPU())

	d, err := daemon.NewDaemon(context.Background(), daemon.Config{
		ServiceConfig: semq.ServiceConfig{
			MetastorePath: b.TempDir(),
			Log:           log,
		},
		InMemoryListener: true,
	})
	require.NoError(b, err)
	defer func() {
		_ = d.Shutdown(context.Background())
	}()
	s := d.Service()

	for _, p := range []int{1, 8} {
		b.Run(fmt.Sprintf("Put_%d", p), func(b *testing.B) {
			name := random.String("bench-", 10)
			require.NoError(b, s.QueueSetup(context.Background(), &pb.QueueSetupRequest{Name: name}))
			runtime.GOMAXPROCS(p)
			start := clock.Now()
			b.ResetTimer()

			b.RunParallel(func(p *testing.PB) {
				for p.Next() {
					var resp pb.Item
					err := s.QueuePut(context.Background(), &pb.QueuePutRequest{
						Item: random.String("item-", 32),
						Name: name,
					}, &resp)
					if err != nil {
						b.Error(err)
						return
					}
				}
			})
			opsPerSec := float64(b.N) / clock.Since(start).Seconds()
			b.ReportMetric(opsPerSec, "ops/s")
		})
	}

	b.Run("Get", func(b *testing.B) {
		name := random.String("bench-", 10)
		require.NoError(b, s.QueueSetup(context.Background(), &pb.QueueSetupRequest{Name: name}))
		for n := 0; n < b.N; n++ {
			require.NoError(b, s.QueuePut(context.Background(),
				&pb.QueuePutRequest{Name: name, Item: "bench"}, &pb.Item{}))
		}
		start := clock.Now()
		b.ResetTimer()

		for n := 0; n < b.N; n++ {
			var resp pb.QueueGetResponse
			if err := s.QueueGet(context.Background(), &pb.QueueGetRequest{Name: name}, &resp); err != nil {
				b.Error(err)
				return
			}
		}
		opsPerSec := float64(b.N) / clock.Since(start).Seconds()
		b.ReportMetric(opsPerSec, "ops/s")
	})
}
