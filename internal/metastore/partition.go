package metastore

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kapetan-io/errors"
)

// NoWait tells SelectForGet() and Request.Request() to return immediately
// when no partition file is available.
const NoWait time.Duration = -1

// Partition is a bounded append only segment holding one item record per line. A partition
// file is never modified by consumers, it is retired via soft delete once every item in it
// has been requested.
type Partition struct {
	Path    string
	MaxSize int
	// Partitions is the number of active partition files found when this partition
	// was selected. Zero if this partition was newly created.
	Partitions int

	q *Queue
}

// Size returns the number of items in the partition file
func (p *Partition) Size() (int, error) {
	return countLines(p.Path)
}

// CreateIfNotExists creates the partition file if it does not already exist
func (p *Partition) CreateIfNotExists() (*Partition, error) {
	if err := touch(p.Path); err != nil {
		return nil, err
	}
	return p, nil
}

// Append writes the item to the partition file unless the partition is full, in which case a
// new partition file is created and the item is written there. The caller must use the
// returned partition for subsequent writes.
func (p *Partition) Append(item string, hashing bool) (Item, *Partition, error) {
	f := errors.Fields{"category", "metastore", "func", "Partition.Append"}

	current := p
	for {
		size, err := current.Size()
		if err != nil {
			return Item{}, nil, f.Errorf("during Size(): %w", err)
		}

		if size >= current.MaxSize {
			next, err := current.q.newPartition(filepath.Base(current.Path))
			if err != nil {
				return Item{}, nil, f.Errorf("during newPartition(): %w", err)
			}
			current.q.log.LogAttrs(context.Background(), slog.LevelDebug, "partition full; rotating",
				slog.String("full", current.Path), slog.String("next", next.Path),
				slog.Int("max_size", current.MaxSize))
			current = next
			continue
		}

		it := Item{
			PartitionFilepath: current.Path,
			CreatedAt:         Timestamp(current.q.conf.Clock.Now()),
			ID:                NewItemID(item, hashing),
			Item:              item,
		}

		b, err := json.Marshal(it)
		if err != nil {
			return Item{}, nil, f.Errorf("during json.Marshal(): %w", err)
		}

		if err := appendLine(current.Path, b); err != nil {
			return Item{}, nil, f.Errorf("during appendLine(): %w", err)
		}
		return it, current, nil
	}
}

// RequestFile returns the request file paired with this partition, creating it if needed
func (p *Partition) RequestFile() (*Request, error) {
	r := &Request{
		Path:      requestName(p.Path),
		Partition: p,
	}
	return r.CreateIfNotExists()
}

// SelectForPut returns the youngest partition file in the queue directory, creating a new
// one if none exist. The caller must hold the queue lock.
func (q *Queue) SelectForPut() (*Partition, error) {
	f := errors.Fields{"category", "metastore", "func", "Queue.SelectForPut"}

	s, err := scanSegments(q.dir)
	if err != nil {
		return nil, f.Errorf("during scanSegments(): %w", err)
	}

	if s.Len() == 0 {
		p, err := q.newPartition("")
		if err != nil {
			return nil, f.Errorf("during newPartition(): %w", err)
		}
		return p, nil
	}
	return q.partition(s.Youngest(), s.Len()).CreateIfNotExists()
}

// SelectForGet returns the oldest partition file in the queue directory. If there are none it
// returns ErrUnavailablePartitionFiles when 'wait' is less than a second, otherwise it waits
// and tries again until a partition file appears or the context is cancelled. The wait ends
// early if a new partition file is noticed.
//
// SelectForGet does not lock the queue, a caller holding the queue lock should always
// pass NoWait.
func (q *Queue) SelectForGet(ctx context.Context, wait time.Duration) (*Partition, error) {
	f := errors.Fields{"category", "metastore", "func", "Queue.SelectForGet"}

	var watch *Watcher
	defer func() {
		if watch != nil {
			_ = watch.Close()
		}
	}()

	for {
		s, err := scanSegments(q.dir)
		if err != nil {
			return nil, f.Errorf("during scanSegments(): %w", err)
		}

		if s.Len() != 0 {
			return q.partition(s.Oldest(), s.Len()).CreateIfNotExists()
		}

		q.log.Warn("partition files not found in get request", "dir", q.dir)
		if wait < time.Second {
			return nil, &ErrUnavailablePartitionFiles{Path: q.dir}
		}

		if watch == nil {
			watch = q.Watch()
		}
		if err := q.wait(ctx, wait, watch); err != nil {
			return nil, err
		}
	}
}

func (q *Queue) partition(name string, count int) *Partition {
	return &Partition{
		Path:       filepath.Join(q.dir, name),
		MaxSize:    q.conf.PartitionMaxSize,
		Partitions: count,
		q:          q,
	}
}

// newPartition creates a new partition file which sorts after 'youngest'
func (q *Queue) newPartition(youngest string) (*Partition, error) {
	path, err := createSegment(q.dir, q.conf.Clock.Now(), youngest)
	if err != nil {
		return nil, err
	}
	q.log.LogAttrs(context.Background(), LevelDebugAll, "created partition file",
		slog.String("file", path))
	return &Partition{
		Path:    path,
		MaxSize: q.conf.PartitionMaxSize,
		q:       q,
	}, nil
}
