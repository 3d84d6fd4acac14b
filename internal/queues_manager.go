package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kapetan-io/semq/internal/metastore"
	"github.com/kapetan-io/semq/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/set"
)

type QueuesManagerConfig struct {
	// Log is the logger all queues will use
	Log *slog.Logger
	// Clock is the time source for item and request timestamps
	Clock *clock.Provider
	// MetastorePath is the metastore used when a request does not name one
	MetastorePath string
	// PartitionMaxSize is the maximum number of items a partition file may hold
	PartitionMaxSize int
	// TrashDirName is the name of the trash directory within each queue directory
	TrashDirName string
	// ItemHashing when true derives item ids from item content for every queue
	ItemHashing bool
	// InPlaceDelete renames soft deleted files within the queue directory
	InPlaceDelete bool
	// MaxRequestsPerQueue is the number of client requests each queue will buffer
	MaxRequestsPerQueue int
}

// QueuesManager manages the queues in use. A queue is identified by the metastore it lives
// in and its name, and there is only ever one running Queue for a queue directory.
type QueuesManager struct {
	queues     map[string]*Queue
	conf       QueuesManagerConfig
	log        *slog.Logger
	inShutdown atomic.Bool
	mutex      sync.Mutex
}

func NewQueuesManager(conf QueuesManagerConfig) (*QueuesManager, error) {
	set.Default(&conf.Log, slog.Default())
	set.Default(&conf.Clock, clock.NewProvider())
	set.Default(&conf.PartitionMaxSize, metastore.DefaultPartitionMaxSize)
	set.Default(&conf.TrashDirName, metastore.DefaultTrashDirName)

	if conf.MetastorePath == "" {
		return nil, transport.NewInvalidOption("metastore path cannot be empty")
	}

	return &QueuesManager{
		log:    conf.Log.With("code.namespace", "QueuesManager"),
		queues: make(map[string]*Queue),
		conf:   conf,
	}, nil
}

// MetastorePath returns the metastore path to use, which is 'path' unless it is empty
func (qm *QueuesManager) MetastorePath(path string) string {
	if path == "" {
		return qm.conf.MetastorePath
	}
	return path
}

// Get returns the running queue for the named queue, starting one if it is not running.
// If 'metastorePath' is empty the default metastore path is used.
func (qm *QueuesManager) Get(_ context.Context, metastorePath, name string) (*Queue, error) {
	if qm.inShutdown.Load() {
		return nil, ErrServiceShutdown
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	root, err := filepath.Abs(qm.MetastorePath(metastorePath))
	if err != nil {
		return nil, transport.NewInvalidOption("invalid metastore path; %s", err)
	}
	key := filepath.Join(root, name)

	// If queue is already running
	q, ok := qm.queues[key]
	if ok {
		return q, nil
	}

	q, err = SpawnQueue(QueueConfig{
		QueueConfig: metastore.QueueConfig{
			PartitionMaxSize: qm.conf.PartitionMaxSize,
			InPlaceDelete:    qm.conf.InPlaceDelete,
			TrashDirName:     qm.conf.TrashDirName,
			ItemHashing:      qm.conf.ItemHashing,
			Clock:            qm.conf.Clock,
			Log:              qm.conf.Log,
			MetastorePath:    root,
			Name:             name,
		},
		MaxRequestsPerQueue: qm.conf.MaxRequestsPerQueue,
	})
	if err != nil {
		return nil, err
	}

	qm.queues[key] = q
	return q, nil
}

// Discover lists every queue within the metastore path
func (qm *QueuesManager) Discover(_ context.Context, metastorePath string) ([]metastore.QueueInfo, error) {
	if qm.inShutdown.Load() {
		return nil, ErrServiceShutdown
	}
	return metastore.Discover(qm.MetastorePath(metastorePath))
}

func (qm *QueuesManager) Shutdown(ctx context.Context) error {
	if qm.inShutdown.Swap(true) {
		return nil
	}
	defer qm.mutex.Unlock()
	qm.mutex.Lock()

	wait := make(chan error, 1)
	go func() {
		var first error
		for key, q := range qm.queues {
			if err := q.Shutdown(ctx); err != nil {
				qm.log.Error("while shutting down queue", "queue", q.Name(), "error", err)
				if first == nil {
					first = err
				}
			}
			delete(qm.queues, key)
		}
		wait <- first
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-wait:
		return err
	}
}
