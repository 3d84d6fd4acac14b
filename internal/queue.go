package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/semq/internal/metastore"
	"github.com/kapetan-io/semq/internal/types"
	"github.com/kapetan-io/semq/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/random"
	"github.com/kapetan-io/tackle/set"
)

type MethodKind int

const (
	MethodPut MethodKind = iota
	MethodGet
	MethodSize
	MethodSetup
	MethodCleanup

	DefaultMaxRequestsPerQueue = 500
)

type QueueConfig struct {
	metastore.QueueConfig

	// MaxRequestsPerQueue is the maximum number of client requests a queue will buffer before it
	// returns a queue overloaded error
	MaxRequestsPerQueue int
}

// Queue is the synchronization point for a single queue directory. Every operation which reads or
// modifies the queue directory is handled by requestLoop() one at a time. Gets which find the queue
// empty are parked in the waiting list, they never block the loop.
type Queue struct {
	requestCh  chan *Request
	shutdownCh chan *types.ShutdownRequest
	// doneCh is closed once requestLoop() exits
	doneCh     chan struct{}
	store      *metastore.Queue
	wg         sync.WaitGroup
	conf       QueueConfig
	log        *slog.Logger
	// inFlight is the number of client requests currently waiting on a response
	inFlight   atomic.Int32
	inShutdown atomic.Bool
	instanceID string
}

func SpawnQueue(conf QueueConfig) (*Queue, error) {
	set.Default(&conf.Log, slog.Default())
	set.Default(&conf.Clock, clock.NewProvider())
	set.Default(&conf.MaxRequestsPerQueue, DefaultMaxRequestsPerQueue)

	s, err := metastore.NewQueue(conf.QueueConfig)
	if err != nil {
		if errors.Is(err, &metastore.ErrSoftDeleteMisconfigured{}) {
			return nil, transport.NewInvalidOption(err.Error())
		}
		return nil, transport.NewInvalidOption("invalid queue; %s", err)
	}

	q := &Queue{
		shutdownCh: make(chan *types.ShutdownRequest),
		doneCh:     make(chan struct{}),
		requestCh:  make(chan *Request, conf.MaxRequestsPerQueue),
		instanceID: random.Alpha("", 10),
		store:      s,
		conf:       conf,
	}
	q.log = conf.Log.With("code.namespace", "Queue", "queue", conf.Name, "instance-id", q.instanceID)

	q.log.LogAttrs(context.Background(), metastore.LevelDebugAll, "queue started",
		slog.String("dir", s.Dir()))
	q.wg.Add(1)
	go q.requestLoop()
	return q, nil
}

func (q *Queue) Name() string {
	return q.conf.Name
}

// Dir is the absolute path of the queue directory
func (q *Queue) Dir() string {
	return q.store.Dir()
}

// Put appends the item to the queue, blocking until it is written to a partition file.
func (q *Queue) Put(ctx context.Context, req *types.PutRequest) error {
	if q.inShutdown.Load() {
		return ErrQueueShutdown
	}
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	r := Request{
		Method:  MethodPut,
		Request: req,
	}
	if err := q.queueRequest(ctx, &r); err != nil {
		return err
	}
	return req.Err
}

// Get retrieves the next item from the queue. If the queue is empty and GetOptions.Wait is at
// least a second, Get blocks until an item arrives, the context is cancelled or the queue is
// shutdown.
//
// # Context Cancellation
// Cancelling the context while the request is waiting abandons the request. If the context is
// cancelled after an item was claimed on behalf of this request, that item is not offered to
// another client.
func (q *Queue) Get(ctx context.Context, req *types.GetRequest) error {
	if q.inShutdown.Load() {
		return ErrQueueShutdown
	}
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	req.RequestID = metastore.NewRequestID()
	req.ReadyCh = make(chan struct{})
	req.Context = ctx

	select {
	case q.requestCh <- &Request{Method: MethodGet, Request: req}:
	default:
		return transport.NewRetryRequest(MsgQueueOverLoaded)
	}

	return q.wait(ctx, req.ReadyCh, func() error { return req.Err })
}

func (q *Queue) Size(ctx context.Context, req *types.SizeRequest) error {
	if q.inShutdown.Load() {
		return ErrQueueShutdown
	}
	return q.queueRequest(ctx, &Request{
		Method:  MethodSize,
		Request: req,
	})
}

// Setup creates the queue and trash directories if they do not already exist
func (q *Queue) Setup(ctx context.Context) error {
	if q.inShutdown.Load() {
		return ErrQueueShutdown
	}
	return q.queueRequest(ctx, &Request{Method: MethodSetup})
}

// Cleanup empties the trash, and removes all items when CleanupRequest.Everything is true
func (q *Queue) Cleanup(ctx context.Context, req *types.CleanupRequest) error {
	if q.inShutdown.Load() {
		return ErrQueueShutdown
	}
	return q.queueRequest(ctx, &Request{
		Method:  MethodCleanup,
		Request: req,
	})
}

func (q *Queue) Shutdown(ctx context.Context) error {
	if q.inShutdown.Swap(true) {
		return nil
	}

	req := &types.ShutdownRequest{
		ReadyCh: make(chan struct{}),
		Context: ctx,
	}

	// Wait until q.requestLoop() shutdown is complete or until
	// our context is cancelled.
	select {
	case q.shutdownCh <- req:
		q.wg.Wait()
		return req.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -------------------------------------------------
// Main Loop and Handlers
// -------------------------------------------------

type QueueState struct {
	// Waiting are the get requests waiting for an item to arrive
	Waiting types.GetBatch
	// RetryTimer fires when the next waiting get request should be attempted again
	RetryTimer clock.Timer
	// Watcher notices new partition files created by other processes sharing the
	// metastore. It only exists while get requests are waiting.
	Watcher *metastore.Watcher
}

// WatchCh returns nil if no watcher is running, which blocks forever in a select
func (s *QueueState) WatchCh() <-chan struct{} {
	if s.Watcher == nil {
		return nil
	}
	return s.Watcher.C()
}

func (q *Queue) requestLoop() {
	defer func() {
		close(q.doneCh)
		q.wg.Done()
	}()
	state := QueueState{
		RetryTimer: q.conf.Clock.NewTimer(humanize.LongTime),
	}
	defer state.RetryTimer.Stop()

	for {
		q.log.LogAttrs(context.Background(), metastore.LevelDebugAll, "Queue.requestLoop()",
			slog.Int("Requests", len(q.requestCh)),
			slog.Int("Waiting", state.Waiting.Len()),
			slog.Int("InFlight", int(q.inFlight.Load())),
		)

		select {
		case req := <-q.requestCh:
			q.handleRequest(&state, req)

		case req := <-q.shutdownCh:
			q.handleShutdown(&state, req)
			return

		case <-state.RetryTimer.C():
			q.log.LogAttrs(context.Background(), metastore.LevelDebugAll, "retry timer fired")
			q.retryWaiting(&state, false)

		case <-state.WatchCh():
			q.log.LogAttrs(context.Background(), metastore.LevelDebugAll, "partition file created")
			q.retryWaiting(&state, true)
		}
	}
}

func (q *Queue) handleRequest(state *QueueState, req *Request) {
	switch req.Method {
	case MethodPut:
		q.handlePut(state, req)
	case MethodGet:
		q.handleGet(state, req.Request.(*types.GetRequest))
	case MethodSize:
		r := req.Request.(*types.SizeRequest)
		r.Result, req.Err = q.store.Size(r.Options)
		close(req.ReadyCh)
	case MethodSetup:
		req.Err = q.store.Setup()
		close(req.ReadyCh)
	case MethodCleanup:
		q.handleCleanup(state, req)
	default:
		panic(fmt.Sprintf("undefined request method '%d'", req.Method))
	}
}

func (q *Queue) handlePut(state *QueueState, req *Request) {
	r := req.Request.(*types.PutRequest)
	r.Result, r.Err = q.store.Put(r.Item, r.ItemHashing)
	close(req.ReadyCh)

	// A successful put may satisfy any waiting gets
	if r.Err == nil && state.Waiting.Len() != 0 {
		q.retryWaiting(state, true)
	}
}

func (q *Queue) handleGet(state *QueueState, req *types.GetRequest) {
	if req.Context.Err() != nil {
		req.Err = req.Context.Err()
		close(req.ReadyCh)
		return
	}

	if q.attempt(req) {
		close(req.ReadyCh)
		return
	}

	req.NextAttempt = q.conf.Clock.Now().Add(req.Options.Wait)
	state.Waiting.Add(req)
	q.log.LogAttrs(req.Context, slog.LevelDebug, "queue empty; get request waiting",
		slog.String("request_id", req.RequestID),
		slog.String("wait", req.Options.Wait.String()))

	if state.Watcher == nil {
		state.Watcher = q.store.Watch()
	}
	q.resetRetryTimer(state)
}

// attempt makes a single attempt to fulfill the get request. Returns false if the request
// should wait for an item to arrive.
func (q *Queue) attempt(req *types.GetRequest) bool {
	r, err := q.store.Attempt(req.Context, req.RequestID, req.Options)
	if err == nil {
		req.Result = r
		return true
	}

	if errors.Is(err, &metastore.ErrUnavailablePartitionFiles{}) && req.Options.Wait >= time.Second {
		return false
	}

	req.Result, req.Err = metastore.EmptyResult(err, req.Options.Fail)
	if req.Err != nil && !errors.Is(req.Err, &metastore.ErrUnavailablePartitionFiles{}) {
		q.log.Error("while retrieving item from queue", "error", req.Err,
			"request_id", req.RequestID)
	}
	return true
}

// retryWaiting attempts every waiting get request whose next attempt is due. When 'all' is true
// every waiting request is attempted regardless of when it is due.
func (q *Queue) retryWaiting(state *QueueState, all bool) {
	now := q.conf.Clock.Now()

	for i, req := range state.Waiting.Requests {
		// If client has gone away
		if req.Context.Err() != nil {
			req.Err = req.Context.Err()
			close(req.ReadyCh)
			state.Waiting.MarkNil(i)
			continue
		}

		if !all && now.Before(req.NextAttempt) {
			continue
		}

		if q.attempt(req) {
			close(req.ReadyCh)
			state.Waiting.MarkNil(i)
			continue
		}
		req.NextAttempt = now.Add(req.Options.Wait)
	}
	state.Waiting.FilterNils()

	// The watcher is only needed while gets are waiting
	if state.Waiting.Len() == 0 && state.Watcher != nil {
		_ = state.Watcher.Close()
		state.Watcher = nil
	}
	q.resetRetryTimer(state)
}

// resetRetryTimer sets the retry timer to fire when the soonest waiting request is due
func (q *Queue) resetRetryTimer(state *QueueState) {
	next := humanize.LongTime
	if state.Waiting.Len() != 0 {
		now := q.conf.Clock.Now()
		for _, req := range state.Waiting.Requests {
			if d := req.NextAttempt.Sub(now); d < next {
				next = d
			}
		}
		if next < 0 {
			next = 0
		}
	}
	state.RetryTimer.Stop()
	state.RetryTimer.Reset(next)
}

func (q *Queue) handleCleanup(state *QueueState, req *Request) {
	r := req.Request.(*types.CleanupRequest)

	// Cleanup may remove the directory being watched
	if state.Watcher != nil {
		_ = state.Watcher.Close()
		state.Watcher = nil
	}

	req.Err = q.store.Cleanup(r.Everything)
	close(req.ReadyCh)

	if state.Waiting.Len() != 0 {
		state.Watcher = q.store.Watch()
	}
}

func (q *Queue) handleShutdown(state *QueueState, req *types.ShutdownRequest) {
	for _, r := range state.Waiting.Requests {
		r.Err = ErrQueueShutdown
		close(r.ReadyCh)
	}
	state.Waiting.Requests = nil

	// Drain any requests which arrived before we noticed the shutdown
EMPTY:
	for {
		select {
		case r := <-q.requestCh:
			if g, ok := r.Request.(*types.GetRequest); ok {
				g.Err = ErrQueueShutdown
				close(g.ReadyCh)
				continue
			}
			r.Err = ErrQueueShutdown
			close(r.ReadyCh)
		default:
			break EMPTY
		}
	}

	if state.Watcher != nil {
		if err := state.Watcher.Close(); err != nil {
			req.Err = err
		}
	}
	q.log.LogAttrs(req.Context, metastore.LevelDebugAll, "queue shutdown")
	close(req.ReadyCh)
}

func (q *Queue) queueRequest(ctx context.Context, r *Request) error {
	if q.inShutdown.Load() {
		return ErrQueueShutdown
	}

	r.ReadyCh = make(chan struct{})
	r.Context = ctx

	select {
	case q.requestCh <- r:
	case <-ctx.Done():
		return ctx.Err()
	}

	return q.wait(ctx, r.ReadyCh, func() error { return r.Err })
}

// wait blocks until the request is handled. A request which was still queued when
// requestLoop() exited is never handled and returns ErrQueueShutdown.
func (q *Queue) wait(ctx context.Context, readyCh chan struct{}, err func() error) error {
	select {
	case <-readyCh:
		return err()
	case <-ctx.Done():
		return ctx.Err()
	case <-q.doneCh:
		select {
		case <-readyCh:
			return err()
		default:
			return ErrQueueShutdown
		}
	}
}
