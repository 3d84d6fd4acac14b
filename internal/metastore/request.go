package metastore

import (
	"context"
	"log/slog"
	"time"

	"github.com/kapetan-io/errors"
)

// Request is the cursor for a partition file. Each line is the id of a request, and line 'i'
// of the request file claimed line 'i' of the partition file. The number of lines is the
// number of items already handed out from the partition.
type Request struct {
	Path      string
	Partition *Partition
}

// Size returns the number of requests recorded in the request file
func (r *Request) Size() (int, error) {
	return countLines(r.Path)
}

// CreateIfNotExists creates the request file if it does not already exist
func (r *Request) CreateIfNotExists() (*Request, error) {
	if err := touch(r.Path); err != nil {
		return nil, err
	}
	return r, nil
}

// Request claims the next unrequested item in the partition by writing the request id to the
// request file. If every item in the partition has already been requested, the partition and
// this request file are retired and the claim is made against the next oldest partition
// instead. The returned request file is the one the claim was written to.
func (r *Request) Request(ctx context.Context, requestID string, wait time.Duration) (*Request, error) {
	f := errors.Fields{"category", "metastore", "func", "Request.Request"}

	current := r
	for {
		ceiling, err := current.Partition.Size()
		if err != nil {
			return nil, f.Errorf("during Partition.Size(): %w", err)
		}

		count, err := current.Size()
		if err != nil {
			return nil, f.Errorf("during Size(): %w", err)
		}

		if count < ceiling {
			if err := appendLine(current.Path, []byte(requestID)); err != nil {
				return nil, f.Errorf("during appendLine(): %w", err)
			}
			return current, nil
		}

		current, err = current.Refresh(ctx, wait)
		if err != nil {
			return nil, err
		}
	}
}

// Refresh soft deletes the exhausted partition file along with this request file, then
// selects the next oldest partition and returns its request file.
func (r *Request) Refresh(ctx context.Context, wait time.Duration) (*Request, error) {
	f := errors.Fields{"category", "metastore", "func", "Request.Refresh"}
	q := r.Partition.q

	q.log.LogAttrs(ctx, slog.LevelDebug, "partition exhausted; retiring",
		slog.String("partition", r.Partition.Path), slog.String("request", r.Path))

	if err := q.trash.Delete(r.Partition.Path); err != nil {
		return nil, f.Errorf("during Trash.Delete(partition): %w", err)
	}
	if err := q.trash.Delete(r.Path); err != nil {
		return nil, f.Errorf("during Trash.Delete(request): %w", err)
	}

	p, err := q.SelectForGet(ctx, wait)
	if err != nil {
		return nil, err
	}

	next, err := p.RequestFile()
	if err != nil {
		return nil, f.Errorf("during RequestFile(): %w", err)
	}
	return next, nil
}
