package proto

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

type QueueSetupRequest struct {
	Name          string
	MetastorePath string
}

func (r *QueueSetupRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"name": r.Name}
	setOptional(m, "metastore_path", r.MetastorePath)
	return structpb.NewStruct(m)
}

func (r *QueueSetupRequest) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Name = f.String("name")
	r.MetastorePath = f.String("metastore_path")
	return f.Err()
}

type QueueCleanupRequest struct {
	Name          string
	MetastorePath string
	// Everything when true removes the queue directory along with all unconsumed items
	Everything bool
}

func (r *QueueCleanupRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"name": r.Name}
	setOptional(m, "metastore_path", r.MetastorePath)
	setOptional(m, "everything", r.Everything)
	return structpb.NewStruct(m)
}

func (r *QueueCleanupRequest) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Name = f.String("name")
	r.MetastorePath = f.String("metastore_path")
	r.Everything = f.Bool("everything")
	return f.Err()
}

type QueuePutRequest struct {
	Name          string
	MetastorePath string
	Item          string
	ItemHashing   bool
}

func (r *QueuePutRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"name": r.Name, "item": r.Item}
	setOptional(m, "metastore_path", r.MetastorePath)
	setOptional(m, "item_hashing", r.ItemHashing)
	return structpb.NewStruct(m)
}

func (r *QueuePutRequest) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Name = f.String("name")
	r.MetastorePath = f.String("metastore_path")
	r.Item = f.String("item")
	r.ItemHashing = f.Bool("item_hashing")
	return f.Err()
}

type QueueGetRequest struct {
	Name          string
	MetastorePath string
	// WaitSeconds is the interval between attempts when the queue is empty. Values less
	// than one return immediately. Defaults to -1 when not provided.
	WaitSeconds     int
	Fail            bool
	ExcludeMetadata bool
}

func (r *QueueGetRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"name": r.Name, "wait_seconds": r.WaitSeconds}
	setOptional(m, "metastore_path", r.MetastorePath)
	setOptional(m, "fail", r.Fail)
	setOptional(m, "exclude_metadata", r.ExcludeMetadata)
	return structpb.NewStruct(m)
}

func (r *QueueGetRequest) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Name = f.String("name")
	r.MetastorePath = f.String("metastore_path")
	r.WaitSeconds = f.Int("wait_seconds", -1)
	r.Fail = f.Bool("fail")
	r.ExcludeMetadata = f.Bool("exclude_metadata")
	return f.Err()
}

type QueueSizeRequest struct {
	Name           string
	MetastorePath  string
	IncludeItems   bool
	IgnoreRequests bool
}

func (r *QueueSizeRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"name": r.Name}
	setOptional(m, "metastore_path", r.MetastorePath)
	setOptional(m, "include_items", r.IncludeItems)
	setOptional(m, "ignore_requests", r.IgnoreRequests)
	return structpb.NewStruct(m)
}

func (r *QueueSizeRequest) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Name = f.String("name")
	r.MetastorePath = f.String("metastore_path")
	r.IncludeItems = f.Bool("include_items")
	r.IgnoreRequests = f.Bool("ignore_requests")
	return f.Err()
}

type QueuesDiscoverRequest struct {
	MetastorePath string
}

func (r *QueuesDiscoverRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{}
	setOptional(m, "metastore_path", r.MetastorePath)
	return structpb.NewStruct(m)
}

func (r *QueuesDiscoverRequest) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.MetastorePath = f.String("metastore_path")
	return f.Err()
}

// -------------------------------------------------
// Responses
// -------------------------------------------------

// Item is the item record as stored in the partition file. The request fields are only
// populated when the item was retrieved.
type Item struct {
	PartitionFilepath string `json:"partition_filepath"`
	ItemCreatedAt     string `json:"item_created_at"`
	ItemID            string `json:"item_id"`
	Item              string `json:"item"`
	ItemRequestID     string `json:"item_request_id,omitempty"`
	ItemRequestFile   string `json:"item_request_file,omitempty"`
	ItemRetrievedAt   string `json:"item_retrieved_at,omitempty"`
}

func (i *Item) toMap() map[string]any {
	m := map[string]any{
		"partition_filepath": i.PartitionFilepath,
		"item_created_at":    i.ItemCreatedAt,
		"item_id":            i.ItemID,
		"item":               i.Item,
	}
	setOptional(m, "item_request_id", i.ItemRequestID)
	setOptional(m, "item_request_file", i.ItemRequestFile)
	setOptional(m, "item_retrieved_at", i.ItemRetrievedAt)
	return m
}

func (i *Item) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(i.toMap())
}

func (i *Item) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	i.PartitionFilepath = f.String("partition_filepath")
	i.ItemCreatedAt = f.String("item_created_at")
	i.ItemID = f.String("item_id")
	i.Item = f.String("item")
	i.ItemRequestID = f.String("item_request_id")
	i.ItemRequestFile = f.String("item_request_file")
	i.ItemRetrievedAt = f.String("item_retrieved_at")
	return f.Err()
}

type QueueGetResponse struct {
	// Found is false if the queue was empty
	Found bool
	// Item is the item payload
	Item string
	// Record is nil if the request excluded metadata or no item was found
	Record *Item
}

func (r *QueueGetResponse) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{"found": r.Found}
	if r.Found {
		m["item"] = r.Item
	}
	if r.Record != nil {
		m["record"] = r.Record.toMap()
	}
	return structpb.NewStruct(m)
}

func (r *QueueGetResponse) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Found = f.Bool("found")
	r.Item = f.String("item")
	r.Record = nil
	if rec := f.Struct("record"); rec != nil {
		r.Record = &Item{}
		if err := r.Record.FromStruct(rec); err != nil {
			return fmt.Errorf("record is invalid; %w", err)
		}
	}
	return f.Err()
}

type QueueSizeResponse struct {
	Timestamp            string
	ActivePartitionFiles int
	// IncludesItems is true when the totals below were counted
	IncludesItems bool
	TotalItems    int
	TotalRequests int
	TotalPending  int
}

func (r *QueueSizeResponse) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{
		"timestamp":              r.Timestamp,
		"active_partition_files": r.ActivePartitionFiles,
	}
	if r.IncludesItems {
		m["total_items_in_pfiles"] = r.TotalItems
		m["total_requests_in_rfiles"] = r.TotalRequests
		m["total_pending_items"] = r.TotalPending
	}
	return structpb.NewStruct(m)
}

func (r *QueueSizeResponse) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Timestamp = f.String("timestamp")
	r.ActivePartitionFiles = f.Int("active_partition_files", 0)
	_, r.IncludesItems = s.GetFields()["total_items_in_pfiles"]
	r.TotalItems = f.Int("total_items_in_pfiles", 0)
	r.TotalRequests = f.Int("total_requests_in_rfiles", 0)
	r.TotalPending = f.Int("total_pending_items", 0)
	return f.Err()
}

type QueueInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type QueuesDiscoverResponse struct {
	Queues []QueueInfo `json:"queues"`
}

func (r *QueuesDiscoverResponse) ToStruct() (*structpb.Struct, error) {
	queues := make([]any, 0, len(r.Queues))
	for _, q := range r.Queues {
		queues = append(queues, map[string]any{
			"name":       q.Name,
			"path":       q.Path,
			"created_at": q.CreatedAt,
			"updated_at": q.UpdatedAt,
		})
	}
	return structpb.NewStruct(map[string]any{"queues": queues})
}

func (r *QueuesDiscoverResponse) FromStruct(s *structpb.Struct) error {
	f := newFields(s)
	r.Queues = nil
	for i, v := range f.List("queues") {
		q := v.GetStructValue()
		if q == nil {
			return fmt.Errorf("queues[%d] is invalid; expected an object", i)
		}
		qf := newFields(q)
		r.Queues = append(r.Queues, QueueInfo{
			Name:      qf.String("name"),
			Path:      qf.String("path"),
			CreatedAt: qf.String("created_at"),
			UpdatedAt: qf.String("updated_at"),
		})
		if err := qf.Err(); err != nil {
			return fmt.Errorf("queues[%d] is invalid; %w", i, err)
		}
	}
	return f.Err()
}

var (
	_ Message = &QueueSetupRequest{}
	_ Message = &QueueCleanupRequest{}
	_ Message = &QueuePutRequest{}
	_ Message = &QueueGetRequest{}
	_ Message = &QueueSizeRequest{}
	_ Message = &QueuesDiscoverRequest{}
	_ Message = &Item{}
	_ Message = &QueueGetResponse{}
	_ Message = &QueueSizeResponse{}
	_ Message = &QueuesDiscoverResponse{}
)
