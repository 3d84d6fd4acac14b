package metastore

import (
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Item is a single record in a partition file. The json field names are part of the on
// disk format and must not change.
type Item struct {
	PartitionFilepath string `json:"partition_filepath"`
	CreatedAt         string `json:"item_created_at"`
	ID                string `json:"item_id"`
	Item              string `json:"item"`
}

// Record is an Item as returned to a consumer, along with the request that retrieved it.
type Record struct {
	Item
	RequestID   string `json:"item_request_id"`
	RequestFile string `json:"item_request_file"`
	RetrievedAt string `json:"item_retrieved_at"`
}

// NewItemID returns a random id, or an id derived from the item content when hashing
// is enabled. Hashed ids are stable for identical content.
func NewItemID(item string, hashing bool) string {
	if hashing {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(item)).String()
	}
	return uuid.New().String()
}

// NewRequestID returns a new unique request id
func NewRequestID() string {
	return ksuid.New().String()
}

// Timestamp formats t as a naive UTC ISO 8601 timestamp. The fraction is omitted when
// the time falls on a whole second. e.g. '2024-04-05T17:01:18.000123'
func Timestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}
