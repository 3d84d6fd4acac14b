package metastore_test

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kapetan-io/semq/internal/metastore"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/color"
	"github.com/kapetan-io/tackle/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var log *slog.Logger

func TestMain(m *testing.M) {
	logFlag := flag.String("logging", "", "indicates the type of logging during tests. "+
		"If unset tests run with debug level colored text log output. "+
		"If set to 'ci' discards logs during tests")
	flag.Parse()

	switch *logFlag {
	case "":
		log = slog.New(color.NewLog(&color.LogOptions{
			HandlerOptions: slog.HandlerOptions{
				ReplaceAttr: color.SuppressAttrs(slog.TimeKey),
				Level:       metastore.LevelDebugAll,
			},
		}))
	default:
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	goleak.VerifyTestMain(m)
}

func newQueue(t *testing.T, conf metastore.QueueConfig) *metastore.Queue {
	t.Helper()

	if conf.MetastorePath == "" {
		conf.MetastorePath = t.TempDir()
	}
	if conf.Name == "" {
		conf.Name = random.String("queue-", 10)
	}
	if conf.Log == nil {
		conf.Log = log
	}
	q, err := metastore.NewQueue(conf)
	require.NoError(t, err)
	require.NoError(t, q.Setup())
	return q
}

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), metastore.RequestPrefix) {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

func lineCount(t *testing.T, path string) int {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(b), "\n")
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("NewQueue", func(t *testing.T) {
		_, err := metastore.NewQueue(metastore.QueueConfig{MetastorePath: t.TempDir()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue name cannot be empty")

		_, err = metastore.NewQueue(metastore.QueueConfig{Name: "queue"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metastore path cannot be empty")
	})

	t.Run("Setup", func(t *testing.T) {
		root := t.TempDir()
		q := newQueue(t, metastore.QueueConfig{MetastorePath: root, Name: "setup"})
		assert.Equal(t, filepath.Join(root, "setup"), q.Dir())
		assert.DirExists(t, q.Dir())
		assert.DirExists(t, q.TrashDir())
		assert.Equal(t, filepath.Join(root, "setup", metastore.DefaultTrashDirName), q.TrashDir())

		// Setup is idempotent
		require.NoError(t, q.Setup())

		empty, err := q.IsEmpty()
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("PutGetFIFO", func(t *testing.T) {
		const numItems = 10
		q := newQueue(t, metastore.QueueConfig{PartitionMaxSize: numItems})

		var ids []string
		for i := 0; i < numItems; i++ {
			item, err := q.Put(fmt.Sprintf("item-%d", i), false)
			require.NoError(t, err)
			assert.NotEmpty(t, item.ID)
			assert.NotEmpty(t, item.CreatedAt)
			assert.Equal(t, fmt.Sprintf("item-%d", i), item.Item)
			assert.Equal(t, q.Dir(), filepath.Dir(item.PartitionFilepath))
			ids = append(ids, item.ID)
		}
		require.Len(t, segmentFiles(t, q.Dir()), 1)

		for i := 0; i < numItems; i++ {
			r, err := q.Get(ctx, metastore.GetOptions{Wait: metastore.NoWait})
			require.NoError(t, err)
			require.True(t, r.Found)
			require.NotNil(t, r.Record)
			assert.Equal(t, fmt.Sprintf("item-%d", i), r.Item)
			assert.Equal(t, ids[i], r.Record.ID)
			assert.NotEmpty(t, r.Record.RequestID)
			assert.NotEmpty(t, r.Record.RetrievedAt)
			assert.Equal(t, filepath.Join(q.Dir(), metastore.RequestPrefix+
				filepath.Base(r.Record.PartitionFilepath)), r.Record.RequestFile)
		}

		// Every item has been requested, so the next get retires the segment and
		// finds the queue empty.
		r, err := q.Get(ctx, metastore.GetOptions{Wait: metastore.NoWait})
		require.NoError(t, err)
		assert.False(t, r.Found)
		assert.Len(t, segmentFiles(t, q.Dir()), 0)
	})

	t.Run("RotationOnWrite", func(t *testing.T) {
		now := clock.NewProvider()
		now.Freeze(clock.Now())
		defer now.UnFreeze()

		q := newQueue(t, metastore.QueueConfig{PartitionMaxSize: 3, Clock: now})
		for i := 0; i < 7; i++ {
			_, err := q.Put(fmt.Sprintf("item-%d", i), false)
			require.NoError(t, err)
		}

		// Even with a frozen clock each new segment sorts after the last
		files := segmentFiles(t, q.Dir())
		require.Len(t, files, 3)
		assert.Less(t, files[0], files[1])
		assert.Less(t, files[1], files[2])
		assert.Equal(t, 3, lineCount(t, filepath.Join(q.Dir(), files[0])))
		assert.Equal(t, 3, lineCount(t, filepath.Join(q.Dir(), files[1])))
		assert.Equal(t, 1, lineCount(t, filepath.Join(q.Dir(), files[2])))

		// Items are delivered across segments in the order produced
		for i := 0; i < 7; i++ {
			r, err := q.Get(ctx, metastore.GetOptions{})
			require.NoError(t, err)
			require.True(t, r.Found)
			assert.Equal(t, fmt.Sprintf("item-%d", i), r.Item)
		}
	})

	t.Run("CursorAlignment", func(t *testing.T) {
		const k = 4
		q := newQueue(t, metastore.QueueConfig{PartitionMaxSize: k})
		for i := 0; i < k+2; i++ {
			_, err := q.Put(fmt.Sprintf("item-%d", i), false)
			require.NoError(t, err)
		}
		files := segmentFiles(t, q.Dir())
		require.Len(t, files, 2)
		first := filepath.Join(q.Dir(), files[0])
		firstReq := filepath.Join(q.Dir(), metastore.RequestPrefix+files[0])

		for i := 0; i < k; i++ {
			r, err := q.Get(ctx, metastore.GetOptions{})
			require.NoError(t, err)
			assert.Equal(t, first, r.Record.PartitionFilepath)
		}
		assert.Equal(t, k, lineCount(t, firstReq))
		assert.FileExists(t, first)

		// The k+1 get retires the first segment and continues with the next
		r, err := q.Get(ctx, metastore.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("item-%d", k), r.Item)
		assert.Equal(t, filepath.Join(q.Dir(), files[1]), r.Record.PartitionFilepath)

		assert.NoFileExists(t, first)
		assert.NoFileExists(t, firstReq)
		assert.FileExists(t, filepath.Join(q.TrashDir(), metastore.DeletePrefix+files[0]))
		assert.FileExists(t, filepath.Join(q.TrashDir(), metastore.DeletePrefix+metastore.RequestPrefix+files[0]))
	})

	t.Run("EmptyQueue", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{})

		r, err := q.Get(ctx, metastore.GetOptions{Wait: metastore.NoWait, Fail: false})
		require.NoError(t, err)
		assert.False(t, r.Found)
		assert.Nil(t, r.Record)

		_, err = q.Get(ctx, metastore.GetOptions{Wait: metastore.NoWait, Fail: true})
		require.Error(t, err)
		assert.ErrorIs(t, err, &metastore.ErrUnavailablePartitionFiles{})
		var e *metastore.ErrUnavailablePartitionFiles
		require.ErrorAs(t, err, &e)
		assert.Equal(t, q.Dir(), e.Path)

		_, err = q.SelectForGet(ctx, metastore.NoWait)
		assert.ErrorIs(t, err, &metastore.ErrUnavailablePartitionFiles{})
	})

	t.Run("GetWaitsForItem", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{})

		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(200 * time.Millisecond)
			_, err := q.Put("late-item", false)
			assert.NoError(t, err)
		}()

		start := time.Now()
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		r, err := q.Get(c, metastore.GetOptions{Wait: 2 * time.Second, Fail: true})
		require.NoError(t, err)
		require.True(t, r.Found)
		assert.Equal(t, "late-item", r.Item)
		assert.Less(t, time.Since(start), 3*time.Second)
		<-done
	})

	t.Run("GetWaitCancelled", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{})

		c, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err := q.Get(c, metastore.GetOptions{Wait: time.Second})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("ExcludeMetadata", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{})
		_, err := q.Put(`{"key":"value"}`, false)
		require.NoError(t, err)

		r, err := q.Get(ctx, metastore.GetOptions{ExcludeMetadata: true})
		require.NoError(t, err)
		assert.True(t, r.Found)
		assert.Nil(t, r.Record)
		assert.Equal(t, `{"key":"value"}`, r.Item)
	})

	t.Run("ItemHashing", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{})

		a, err := q.Put("same", true)
		require.NoError(t, err)
		b, err := q.Put("same", true)
		require.NoError(t, err)
		c, err := q.Put("same", false)
		require.NoError(t, err)

		assert.Equal(t, a.ID, b.ID)
		assert.NotEqual(t, a.ID, c.ID)
		// uuid5 of "same" in the OID namespace
		assert.Equal(t, metastore.NewItemID("same", true), a.ID)

		hashed := newQueue(t, metastore.QueueConfig{ItemHashing: true})
		d, err := hashed.Put("same", false)
		require.NoError(t, err)
		assert.Equal(t, a.ID, d.ID)
	})

	t.Run("RecordFormat", func(t *testing.T) {
		now := clock.NewProvider()
		now.Freeze(time.Date(2024, 4, 5, 17, 1, 18, 123_456_000, time.UTC))
		defer now.UnFreeze()

		q := newQueue(t, metastore.QueueConfig{Clock: now})
		item, err := q.Put("payload", false)
		require.NoError(t, err)
		assert.Equal(t, "2024-04-05T17:01:18.123456", item.CreatedAt)

		b, err := os.ReadFile(item.PartitionFilepath)
		require.NoError(t, err)

		var line map[string]any
		require.NoError(t, json.Unmarshal(b, &line))
		assert.Equal(t, map[string]any{
			"partition_filepath": item.PartitionFilepath,
			"item_created_at":    "2024-04-05T17:01:18.123456",
			"item_id":            item.ID,
			"item":               "payload",
		}, line)

		r, err := q.Get(ctx, metastore.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, "2024-04-05T17:01:18.123456", r.Record.RetrievedAt)

		b, err = os.ReadFile(r.Record.RequestFile)
		require.NoError(t, err)
		assert.Equal(t, r.Record.RequestID+"\n", string(b))
	})

	t.Run("Size", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{PartitionMaxSize: 5})
		for i := 0; i < 5; i++ {
			_, err := q.Put(fmt.Sprintf("item-%d", i), false)
			require.NoError(t, err)
		}
		for i := 0; i < 2; i++ {
			_, err := q.Get(ctx, metastore.GetOptions{})
			require.NoError(t, err)
		}

		s, err := q.Size(metastore.SizeOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, s.ActivePartitionFiles)
		assert.False(t, s.IncludesItems)
		assert.False(t, s.Timestamp.IsZero())

		s, err = q.Size(metastore.SizeOptions{IncludeItems: true})
		require.NoError(t, err)
		assert.True(t, s.IncludesItems)
		assert.Equal(t, 5, s.TotalItems)
		assert.Equal(t, 2, s.TotalRequests)
		assert.Equal(t, 3, s.TotalPending)

		s, err = q.Size(metastore.SizeOptions{IncludeItems: true, IgnoreRequests: true})
		require.NoError(t, err)
		assert.Equal(t, 5, s.TotalItems)
		assert.Equal(t, 0, s.TotalRequests)
		assert.Equal(t, 5, s.TotalPending)
	})

	t.Run("IsEmptyIsStructural", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{})
		_, err := q.Put("only", false)
		require.NoError(t, err)
		_, err = q.Get(ctx, metastore.GetOptions{})
		require.NoError(t, err)

		// Fully consumed but not yet rotated
		empty, err := q.IsEmpty()
		require.NoError(t, err)
		assert.False(t, empty)

		r, err := q.Get(ctx, metastore.GetOptions{})
		require.NoError(t, err)
		assert.False(t, r.Found)

		empty, err = q.IsEmpty()
		require.NoError(t, err)
		assert.True(t, empty)
	})

	t.Run("Cleanup", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{PartitionMaxSize: 1})
		for i := 0; i < 3; i++ {
			_, err := q.Put(fmt.Sprintf("item-%d", i), false)
			require.NoError(t, err)
		}
		for i := 0; i < 2; i++ {
			_, err := q.Get(ctx, metastore.GetOptions{})
			require.NoError(t, err)
		}

		trash, err := os.ReadDir(q.TrashDir())
		require.NoError(t, err)
		assert.NotEmpty(t, trash)

		require.NoError(t, q.Cleanup(false))
		require.NoError(t, q.Cleanup(false))
		require.NoError(t, q.Setup())

		trash, err = os.ReadDir(q.TrashDir())
		require.NoError(t, err)
		assert.Empty(t, trash)

		// Active segments survive a normal cleanup
		s, err := q.Size(metastore.SizeOptions{IncludeItems: true})
		require.NoError(t, err)
		assert.Equal(t, 2, s.ActivePartitionFiles)
		assert.Equal(t, 1, s.TotalPending)

		t.Run("Everything", func(t *testing.T) {
			require.NoError(t, q.Cleanup(true))
			assert.DirExists(t, q.Dir())
			assert.DirExists(t, q.TrashDir())

			empty, err := q.IsEmpty()
			require.NoError(t, err)
			assert.True(t, empty)

			// The queue is usable after cleanup
			_, err = q.Put("again", false)
			require.NoError(t, err)
			r, err := q.Get(ctx, metastore.GetOptions{})
			require.NoError(t, err)
			assert.Equal(t, "again", r.Item)
		})

		t.Run("NoQueueDirectory", func(t *testing.T) {
			nq, err := metastore.NewQueue(metastore.QueueConfig{MetastorePath: t.TempDir(), Name: "never-setup"})
			require.NoError(t, err)
			require.NoError(t, nq.Cleanup(false))
			assert.DirExists(t, nq.TrashDir())
		})
	})

	t.Run("InPlaceDelete", func(t *testing.T) {
		q := newQueue(t, metastore.QueueConfig{PartitionMaxSize: 1, InPlaceDelete: true})
		_, err := q.Put("one", false)
		require.NoError(t, err)
		_, err = q.Put("two", false)
		require.NoError(t, err)
		files := segmentFiles(t, q.Dir())
		require.Len(t, files, 2)

		_, err = q.Get(ctx, metastore.GetOptions{})
		require.NoError(t, err)
		r, err := q.Get(ctx, metastore.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, "two", r.Item)

		assert.FileExists(t, filepath.Join(q.Dir(), metastore.DeletePrefix+files[0]))
		assert.FileExists(t, filepath.Join(q.Dir(), metastore.DeletePrefix+metastore.RequestPrefix+files[0]))

		s, err := q.Size(metastore.SizeOptions{IncludeItems: true})
		require.NoError(t, err)
		assert.Equal(t, 1, s.ActivePartitionFiles)

		require.NoError(t, q.Cleanup(false))
		assert.NoFileExists(t, filepath.Join(q.Dir(), metastore.DeletePrefix+files[0]))
	})

	t.Run("StructuralErrorsPropagate", func(t *testing.T) {
		q, err := metastore.NewQueue(metastore.QueueConfig{MetastorePath: t.TempDir(), Name: "missing"})
		require.NoError(t, err)

		_, err = q.Put("item", false)
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)

		_, err = q.Get(ctx, metastore.GetOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestTrash(t *testing.T) {
	t.Run("Misconfigured", func(t *testing.T) {
		err := metastore.Trash{Root: t.TempDir()}.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, &metastore.ErrSoftDeleteMisconfigured{})

		err = metastore.Trash{Dir: t.TempDir()}.Validate()
		assert.ErrorIs(t, err, &metastore.ErrSoftDeleteMisconfigured{})

		assert.NoError(t, metastore.Trash{Root: t.TempDir(), InPlace: true}.Validate())
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		root := t.TempDir()
		tr := metastore.Trash{Root: root, Dir: filepath.Join(root, "trash"), Log: log}
		path := filepath.Join(root, "1712336478.000000.json")
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

		require.NoError(t, tr.Delete(path))
		assert.NoFileExists(t, path)
		// The trash directory is created when missing
		assert.FileExists(t, filepath.Join(root, "trash", "del-1712336478.000000.json"))

		// Deleting again is a no-op
		require.NoError(t, tr.Delete(path))
	})
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b"} {
		q, err := metastore.NewQueue(metastore.QueueConfig{MetastorePath: root, Name: name})
		require.NoError(t, err)
		require.NoError(t, q.Setup())
	}
	// Regular files are not queues
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0o644))

	queues, err := metastore.Discover(root)
	require.NoError(t, err)
	require.Len(t, queues, 2)
	assert.Equal(t, "a", queues[0].Name)
	assert.Equal(t, "b", queues[1].Name)
	for _, q := range queues {
		assert.Equal(t, filepath.Join(root, q.Name), q.Path)
		assert.False(t, q.CreatedAt.IsZero())
		assert.False(t, q.UpdatedAt.IsZero())
		assert.WithinDuration(t, time.Now(), q.UpdatedAt, time.Minute)
	}

	_, err = metastore.Discover(filepath.Join(root, "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
