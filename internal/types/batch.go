package types

// GetBatch is the list of get requests waiting for an item to arrive in the queue. The
// order of the batch is the order requests will be offered items.
type GetBatch struct {
	Requests []*GetRequest
}

func (b *GetBatch) Add(req *GetRequest) {
	b.Requests = append(b.Requests, req)
}

// MarkNil marks the request at the index as finished, call FilterNils() once
// done iterating to remove them from the batch
func (b *GetBatch) MarkNil(idx int) {
	b.Requests[idx] = nil
}

// FilterNils removes all nil requests while preserving the order of the remaining requests
func (b *GetBatch) FilterNils() {
	n := 0
	for _, r := range b.Requests {
		if r != nil {
			b.Requests[n] = r
			n++
		}
	}
	// Avoid holding on to finished requests
	for i := n; i < len(b.Requests); i++ {
		b.Requests[i] = nil
	}
	b.Requests = b.Requests[:n]
}

func (b *GetBatch) Len() int {
	return len(b.Requests)
}
