// Package metastore implements a queue on top of plain files in a directory.
//
// Producers append item records to the youngest partition file in the queue directory until it
// holds PartitionMaxSize items, at which point a new partition file is started. Consumers
// read from the oldest partition file by appending a request id to its request file, the line
// number of the request id is the line number of the item claimed. Once every item in a
// partition has been claimed, the partition and its request file are moved to the trash.
//
//	<metastore>/<queue>/1712345678.000123.json
//	<metastore>/<queue>/req-1712345678.000123.json
//	<metastore>/<queue>/trash/del-1712345677.000001.json
//	<metastore>/<queue>/trash/del-req-1712345677.000001.json
//
// The directory listing is the only source of truth, every operation scans the directory.
package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/set"
)

const (
	DefaultPartitionMaxSize = 1_000
	DefaultTrashDirName     = "trash"

	LevelDebugAll = slog.LevelDebug - 1
)

type QueueConfig struct {
	// Name of the queue, which is also the name of the queue directory
	Name string
	// MetastorePath is the directory all queue directories live in
	MetastorePath string
	// PartitionMaxSize is the maximum number of items a partition file may hold
	PartitionMaxSize int
	// TrashDirName is the name of the directory within the queue directory soft deleted
	// files are moved into
	TrashDirName string
	// ItemHashing when true derives item ids from the item content
	ItemHashing bool
	// InPlaceDelete renames soft deleted files within the queue directory
	// instead of moving them into the trash directory
	InPlaceDelete bool
	Log           *slog.Logger
	Clock         *clock.Provider
}

// Queue is a named queue stored in <MetastorePath>/<Name>. It is safe for concurrent use, and
// when supported by the platform, safe for use by multiple processes sharing a metastore.
type Queue struct {
	conf  QueueConfig
	trash Trash
	dir   string
	log   *slog.Logger
	mutex sync.Mutex
}

func NewQueue(conf QueueConfig) (*Queue, error) {
	f := errors.Fields{"category", "metastore", "func", "NewQueue"}

	set.Default(&conf.PartitionMaxSize, DefaultPartitionMaxSize)
	set.Default(&conf.TrashDirName, DefaultTrashDirName)
	set.Default(&conf.Clock, clock.NewProvider())
	set.Default(&conf.Log, slog.Default())

	if strings.TrimSpace(conf.Name) == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if conf.MetastorePath == "" {
		return nil, errors.New("metastore path cannot be empty")
	}
	if conf.PartitionMaxSize < 0 {
		return nil, errors.New("partition max size cannot be negative")
	}

	dir, err := filepath.Abs(filepath.Join(conf.MetastorePath, conf.Name))
	if err != nil {
		return nil, f.Errorf("during filepath.Abs(): %w", err)
	}

	q := &Queue{
		log:  conf.Log.With("code.namespace", "metastore", "queue", conf.Name),
		conf: conf,
		dir:  dir,
	}

	q.trash = Trash{
		Dir:     filepath.Join(dir, conf.TrashDirName),
		InPlace: conf.InPlaceDelete,
		Root:    dir,
		Log:     q.log,
	}
	if err := q.trash.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) Name() string {
	return q.conf.Name
}

// Dir returns the absolute path of the queue directory
func (q *Queue) Dir() string {
	return q.dir
}

// TrashDir returns the absolute path of the trash directory
func (q *Queue) TrashDir() string {
	return q.trash.Dir
}

// Setup creates the queue directory and trash directory if they do not exist
func (q *Queue) Setup() error {
	if err := os.MkdirAll(q.dir, dirPerm); err != nil {
		return err
	}
	return os.MkdirAll(q.trash.Dir, dirPerm)
}

// Cleanup permanently removes all soft deleted files. If 'everything' is true the entire
// queue directory including all items not yet consumed is removed. The queue is
// always left in a usable state.
func (q *Queue) Cleanup(everything bool) error {
	f := errors.Fields{"category", "metastore", "func", "Queue.Cleanup"}

	err := q.locked(func() error {
		if err := q.trash.Empty(); err != nil {
			return f.Errorf("during Trash.Empty(): %w", err)
		}
		if everything {
			if err := os.RemoveAll(q.dir); err != nil {
				return f.Errorf("during os.RemoveAll(): %w", err)
			}
		}
		return nil
	})
	// A queue directory which does not exist has nothing to clean up
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return q.Setup()
}

// Put appends the item to the youngest partition file. When 'hashing' or the queue
// ItemHashing option is true, the item id is derived from the item content.
func (q *Queue) Put(item string, hashing bool) (Item, error) {
	var it Item
	err := q.locked(func() error {
		p, err := q.SelectForPut()
		if err != nil {
			return err
		}
		it, _, err = p.Append(item, hashing || q.conf.ItemHashing)
		return err
	})
	return it, err
}

type GetOptions struct {
	// Wait is how long to wait between attempts when the queue has no partition files. If
	// less than a second, Get returns immediately.
	Wait time.Duration
	// Fail when true returns ErrUnavailablePartitionFiles instead of an empty result
	Fail bool
	// ExcludeMetadata when true only returns the item payload
	ExcludeMetadata bool
}

type GetResult struct {
	// Found is false if the queue had no items
	Found bool
	// Item is the item payload
	Item string
	// Record is nil when GetOptions.ExcludeMetadata is true
	Record *Record
}

// Get retrieves the next item in the queue. If the queue has no partition files and
// GetOptions.Wait is at least a second, Get waits and tries again until an item is
// available or the context is cancelled. The queue lock is not held while waiting.
func (q *Queue) Get(ctx context.Context, opts GetOptions) (GetResult, error) {
	requestID := NewRequestID()

	var watch *Watcher
	defer func() {
		if watch != nil {
			_ = watch.Close()
		}
	}()

	for {
		r, err := q.Attempt(ctx, requestID, opts)
		if err == nil {
			return r, nil
		}

		if !errors.Is(err, &ErrUnavailablePartitionFiles{}) || opts.Wait < time.Second {
			return EmptyResult(err, opts.Fail)
		}

		if watch == nil {
			watch = q.Watch()
		}
		if err := q.wait(ctx, opts.Wait, watch); err != nil {
			return GetResult{}, err
		}
	}
}

// EmptyResult converts ErrUnavailablePartitionFiles into an empty GetResult unless 'fail'
// is true. All other errors are returned unchanged.
func EmptyResult(err error, fail bool) (GetResult, error) {
	if errors.Is(err, &ErrUnavailablePartitionFiles{}) && !fail {
		return GetResult{}, nil
	}
	return GetResult{}, err
}

// Attempt makes a single attempt to retrieve the next item for the request id. It never
// waits, if no partition files exist it returns ErrUnavailablePartitionFiles regardless of
// GetOptions.Fail. Retrying with the same request id after a failed attempt is safe.
func (q *Queue) Attempt(ctx context.Context, requestID string, opts GetOptions) (GetResult, error) {
	f := errors.Fields{"category", "metastore", "func", "Queue.Attempt"}
	var result GetResult

	err := q.locked(func() error {
		p, err := q.SelectForGet(ctx, NoWait)
		if err != nil {
			return err
		}

		r, err := p.RequestFile()
		if err != nil {
			return f.Errorf("during RequestFile(): %w", err)
		}

		r, err = r.Request(ctx, requestID, NoWait)
		if err != nil {
			return err
		}

		// Read back the position we were given, the request file we wrote to may not be
		// the one we started with.
		idx, ok, err := findLine(r.Path, requestID)
		if err != nil {
			return f.Errorf("during findLine(): %w", err)
		}
		if !ok {
			return &ErrRequestIDNotFound{RequestID: requestID, RequestFile: r.Path}
		}

		line, ok, err := readLine(r.Partition.Path, idx)
		if err != nil {
			return f.Errorf("during readLine(): %w", err)
		}
		if !ok {
			return f.Errorf("request file '%s' position %d is beyond the end of partition '%s'",
				r.Path, idx, r.Partition.Path)
		}

		var it Item
		if err := json.Unmarshal(line, &it); err != nil {
			return f.Errorf("during json.Unmarshal(): %w", err)
		}

		result = GetResult{Found: true, Item: it.Item}
		if !opts.ExcludeMetadata {
			result.Record = &Record{
				RetrievedAt: Timestamp(q.conf.Clock.Now()),
				RequestFile: r.Path,
				RequestID:   requestID,
				Item:        it,
			}
		}
		return nil
	})
	return result, err
}

// IsEmpty returns true if the queue directory holds no partition files. A partition
// whose items have all been requested is not considered empty until a get retires it.
func (q *Queue) IsEmpty() (bool, error) {
	s, err := scanSegments(q.dir)
	if err != nil {
		return false, err
	}
	return s.Len() == 0, nil
}

type SizeOptions struct {
	// IncludeItems counts the items in every active partition file
	IncludeItems bool
	// IgnoreRequests skips counting the request files when IncludeItems is true
	IgnoreRequests bool
}

type Size struct {
	Timestamp            time.Time
	ActivePartitionFiles int
	// IncludesItems is true if the item totals below were counted
	IncludesItems bool
	TotalItems    int
	TotalRequests int
	TotalPending  int
}

// Size reports the number of active partition files, and optionally the number
// of items stored, requested and pending.
func (q *Queue) Size(opts SizeOptions) (Size, error) {
	f := errors.Fields{"category", "metastore", "func", "Queue.Size"}
	size := Size{Timestamp: q.conf.Clock.Now().UTC()}

	err := q.locked(func() error {
		s, err := scanSegments(q.dir)
		if err != nil {
			return f.Errorf("during scanSegments(): %w", err)
		}
		size.ActivePartitionFiles = s.Len()
		q.log.Debug("size of active partition files", "count", s.Len())

		if !opts.IncludeItems {
			return nil
		}
		size.IncludesItems = true

		for _, name := range s.Names {
			path := filepath.Join(q.dir, name)
			n, err := countLines(path)
			if err != nil {
				return f.Errorf("during countLines(partition): %w", err)
			}
			size.TotalItems += n

			if opts.IgnoreRequests {
				continue
			}
			n, err = countLines(requestName(path))
			if err != nil {
				return f.Errorf("during countLines(request): %w", err)
			}
			size.TotalRequests += n
		}
		size.TotalPending = size.TotalItems - size.TotalRequests
		return nil
	})
	return size, err
}

type QueueInfo struct {
	Name      string
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Discover returns every queue directory within the metastore path
func Discover(metastorePath string) ([]QueueInfo, error) {
	f := errors.Fields{"category", "metastore", "func", "Discover"}

	entries, err := os.ReadDir(metastorePath)
	if err != nil {
		return nil, f.Errorf("during os.ReadDir(): %w", err)
	}

	queues := make([]QueueInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, f.Errorf("during DirEntry.Info(): %w", err)
		}
		path := filepath.Join(metastorePath, e.Name())
		queues = append(queues, QueueInfo{
			CreatedAt: changeTime(path, fi),
			UpdatedAt: fi.ModTime().UTC(),
			Name:      e.Name(),
			Path:      path,
		})
	}
	return queues, nil
}

// Watch returns a Watcher for the queue directory. Returns nil if the directory
// cannot be watched, in which case waiting falls back to the wait interval alone.
func (q *Queue) Watch() *Watcher {
	w, err := NewWatcher(q.dir, q.log)
	if err != nil {
		q.log.Debug("unable to watch queue directory; polling only", "error", err)
		return nil
	}
	return w
}

// wait blocks for 'd', until the watcher reports a new partition file, or the context
// is cancelled.
func (q *Queue) wait(ctx context.Context, d time.Duration, w *Watcher) error {
	var notify <-chan struct{}
	if w != nil {
		notify = w.C()
	}

	timer := q.conf.Clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-notify:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// locked runs fn while holding both the in process mutex and the directory lock
func (q *Queue) locked(fn func() error) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	unlock, err := lockDir(q.dir)
	if err != nil {
		return fmt.Errorf("while locking queue directory: %w", err)
	}
	defer func() { _ = unlock() }()
	return fn()
}
