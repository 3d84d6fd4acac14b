package types

import (
	"context"
	"time"

	"github.com/kapetan-io/semq/internal/metastore"
)

type PutRequest struct {
	// The item payload to append to the queue
	Item string
	// ItemHashing when true derives the item id from the item payload
	ItemHashing bool
	// The item record written to the partition file
	Result metastore.Item
	// The error to be returned to the caller
	Err error
}

type GetRequest struct {
	// Options used to retrieve the item
	Options metastore.GetOptions
	// RequestID is written to the request file when an item is claimed. It stays the same
	// across every attempt made on behalf of this request.
	RequestID string
	// The context of the requesting client
	Context context.Context
	// NextAttempt is when the queue should try this request again if no partition
	// files were available on the last attempt
	NextAttempt time.Time
	// The result of the request
	Result metastore.GetResult
	// Used to wait for this request to complete
	ReadyCh chan struct{}
	// The error to be returned to the caller
	Err error
}

type SizeRequest struct {
	Options metastore.SizeOptions
	Result  metastore.Size
}

type CleanupRequest struct {
	// Everything when true removes the whole queue directory including unconsumed items
	Everything bool
}

type ShutdownRequest struct {
	Context context.Context
	// Used to wait for this request to complete
	ReadyCh chan struct{}
	// The error to be returned to the caller
	Err error
}
