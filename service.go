/*
Copyright 2024 Derrick J. Wippler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package semq

import (
	"context"
	"log/slog"
	"os"

	"github.com/duh-rpc/duh-go"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/semq/internal"
	"github.com/kapetan-io/semq/internal/metastore"
	"github.com/kapetan-io/semq/internal/types"
	"github.com/kapetan-io/semq/proto"
	"github.com/kapetan-io/semq/transport"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/set"
	"github.com/prometheus/client_golang/prometheus"
)

type ServiceConfig struct {
	// Log is the logging implementation used by this semq instance
	Log *slog.Logger
	// Clock is the time provider used for item and request timestamps
	Clock *clock.Provider
	// MetastorePath is the directory queues are stored in when a request does not name one
	MetastorePath string
	// PartitionMaxSize is the maximum number of items a partition file may hold
	PartitionMaxSize int
	// TrashDirName is the name of the directory soft deleted files are moved into
	TrashDirName string
	// ItemHashing when true derives item ids from item content for every put
	ItemHashing bool
	// InPlaceDelete renames soft deleted files within the queue directory instead of
	// moving them into the trash directory
	InPlaceDelete bool
	// MaxRequestsPerQueue is the maximum number of client requests a queue can buffer before it
	// returns a queue overloaded message
	MaxRequestsPerQueue int
	// Version is reported by the health check
	Version string
}

type Service struct {
	queues    *internal.QueuesManager
	conf      ServiceConfig
	log       *slog.Logger
	puts      prometheus.Counter
	delivered prometheus.Counter
	empty     prometheus.Counter
}

func NewService(conf ServiceConfig) (*Service, error) {
	set.Default(&conf.Log, slog.Default())
	set.Default(&conf.Clock, clock.NewProvider())

	qm, err := internal.NewQueuesManager(internal.QueuesManagerConfig{
		MaxRequestsPerQueue: conf.MaxRequestsPerQueue,
		PartitionMaxSize:    conf.PartitionMaxSize,
		MetastorePath:       conf.MetastorePath,
		InPlaceDelete:       conf.InPlaceDelete,
		TrashDirName:        conf.TrashDirName,
		ItemHashing:         conf.ItemHashing,
		Clock:               conf.Clock,
		Log:                 conf.Log,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		log: conf.Log.With("code.namespace", "Service"),
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semq_items_put_total",
			Help: "The number of items written to queues",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semq_items_delivered_total",
			Help: "The number of items handed out to consumers",
		}),
		empty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "semq_get_empty_total",
			Help: "The number of get requests which found the queue empty",
		}),
		queues: qm,
		conf:   conf,
	}, nil
}

func (s *Service) QueueSetup(ctx context.Context, req *proto.QueueSetupRequest) error {
	if err := s.validateQueue(req.MetastorePath, req.Name); err != nil {
		return err
	}

	q, err := s.queues.Get(ctx, req.MetastorePath, req.Name)
	if err != nil {
		return s.toTransportError(err)
	}
	return s.toTransportError(q.Setup(ctx))
}

func (s *Service) QueueCleanup(ctx context.Context, req *proto.QueueCleanupRequest) error {
	if err := s.validateQueue(req.MetastorePath, req.Name); err != nil {
		return err
	}

	q, err := s.queues.Get(ctx, req.MetastorePath, req.Name)
	if err != nil {
		return s.toTransportError(err)
	}
	return s.toTransportError(q.Cleanup(ctx, &types.CleanupRequest{Everything: req.Everything}))
}

func (s *Service) QueuePut(ctx context.Context, req *proto.QueuePutRequest, res *proto.Item) error {
	if err := s.validateQueue(req.MetastorePath, req.Name); err != nil {
		return err
	}

	q, err := s.queues.Get(ctx, req.MetastorePath, req.Name)
	if err != nil {
		return s.toTransportError(err)
	}

	r := types.PutRequest{
		ItemHashing: req.ItemHashing,
		Item:        req.Item,
	}
	if err := q.Put(ctx, &r); err != nil {
		return s.toTransportError(err)
	}
	s.puts.Inc()

	res.PartitionFilepath = r.Result.PartitionFilepath
	res.ItemCreatedAt = r.Result.CreatedAt
	res.ItemID = r.Result.ID
	res.Item = r.Result.Item
	return nil
}

func (s *Service) QueueGet(ctx context.Context, req *proto.QueueGetRequest, res *proto.QueueGetResponse) error {
	if err := s.validateQueue(req.MetastorePath, req.Name); err != nil {
		return err
	}

	q, err := s.queues.Get(ctx, req.MetastorePath, req.Name)
	if err != nil {
		return s.toTransportError(err)
	}

	r := types.GetRequest{
		Options: metastore.GetOptions{
			Wait:            waitInterval(req.WaitSeconds),
			ExcludeMetadata: req.ExcludeMetadata,
			Fail:            req.Fail,
		},
	}
	if err := q.Get(ctx, &r); err != nil {
		if errors.Is(err, &metastore.ErrUnavailablePartitionFiles{}) {
			s.empty.Inc()
		}
		return s.toTransportError(err)
	}

	if !r.Result.Found {
		s.empty.Inc()
		res.Found = false
		return nil
	}
	s.delivered.Inc()

	res.Found = true
	res.Item = r.Result.Item
	if rec := r.Result.Record; rec != nil {
		res.Record = &proto.Item{
			PartitionFilepath: rec.PartitionFilepath,
			ItemRequestFile:   rec.RequestFile,
			ItemRetrievedAt:   rec.RetrievedAt,
			ItemRequestID:     rec.RequestID,
			ItemCreatedAt:     rec.CreatedAt,
			ItemID:            rec.ID,
			Item:              rec.Item.Item,
		}
	}
	return nil
}

func (s *Service) QueueSize(ctx context.Context, req *proto.QueueSizeRequest, res *proto.QueueSizeResponse) error {
	if err := s.validateQueue(req.MetastorePath, req.Name); err != nil {
		return err
	}

	q, err := s.queues.Get(ctx, req.MetastorePath, req.Name)
	if err != nil {
		return s.toTransportError(err)
	}

	r := types.SizeRequest{
		Options: metastore.SizeOptions{
			IgnoreRequests: req.IgnoreRequests,
			IncludeItems:   req.IncludeItems,
		},
	}
	if err := q.Size(ctx, &r); err != nil {
		return s.toTransportError(err)
	}

	res.Timestamp = metastore.Timestamp(r.Result.Timestamp)
	res.ActivePartitionFiles = r.Result.ActivePartitionFiles
	res.IncludesItems = r.Result.IncludesItems
	res.TotalItems = r.Result.TotalItems
	res.TotalRequests = r.Result.TotalRequests
	res.TotalPending = r.Result.TotalPending
	return nil
}

func (s *Service) QueuesDiscover(ctx context.Context, req *proto.QueuesDiscoverRequest,
	res *proto.QueuesDiscoverResponse) error {

	if err := s.validateMetastorePath(req.MetastorePath); err != nil {
		return err
	}

	queues, err := s.queues.Discover(ctx, req.MetastorePath)
	if err != nil {
		return s.toTransportError(err)
	}

	res.Queues = make([]proto.QueueInfo, 0, len(queues))
	for _, q := range queues {
		res.Queues = append(res.Queues, proto.QueueInfo{
			CreatedAt: metastore.Timestamp(q.CreatedAt),
			UpdatedAt: metastore.Timestamp(q.UpdatedAt),
			Name:      q.Name,
			Path:      q.Path,
		})
	}
	return nil
}

// Health reports whether the default metastore is usable
func (s *Service) Health(_ context.Context, res *transport.HealthResponse) error {
	check := transport.Check{
		ComponentType: "datastore",
		Time:          metastore.Timestamp(s.conf.Clock.Now()),
		Status:        transport.HealthStatusPass,
	}

	res.Status = transport.HealthStatusPass
	res.Version = s.conf.Version
	fi, err := os.Stat(s.queues.MetastorePath(""))
	switch {
	case err != nil:
		check.Status = transport.HealthStatusFail
		check.Output = err.Error()
	case !fi.IsDir():
		check.Status = transport.HealthStatusFail
		check.Output = "metastore path is not a directory"
	}
	if check.Status != transport.HealthStatusPass {
		res.Status = check.Status
	}

	res.Checks = map[string][]transport.Check{"metastore:filesystem": {check}}
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	return s.queues.Shutdown(ctx)
}

// Describe fetches prometheus metrics to be registered
func (s *Service) Describe(ch chan<- *prometheus.Desc) {
	s.puts.Describe(ch)
	s.delivered.Describe(ch)
	s.empty.Describe(ch)
}

// Collect fetches metrics from the service for use by prometheus
func (s *Service) Collect(ch chan<- prometheus.Metric) {
	s.puts.Collect(ch)
	s.delivered.Collect(ch)
	s.empty.Collect(ch)
}

// toTransportError converts errors from the queue into errors the transport knows how to
// return to the client. Errors which are not expected are logged and returned as internal errors.
func (s *Service) toTransportError(err error) error {
	if err == nil {
		return nil
	}

	var d duh.Error
	switch {
	case errors.As(err, &d):
		return err
	case errors.Is(err, &metastore.ErrUnavailablePartitionFiles{}):
		return transport.NewRequestFailed("%s; %s", transport.MsgQueueEmpty, err)
	case errors.Is(err, &metastore.ErrSoftDeleteMisconfigured{}):
		return transport.NewInvalidOption(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return transport.NewRetryRequest("request timeout; try again")
	case errors.Is(err, &metastore.ErrRequestIDNotFound{}):
		s.log.Error("request file is corrupt", "error", err)
		return transport.NewInternal("request file is corrupt; %s", err)
	}
	s.log.Error("internal error", "error", err)
	return transport.NewInternal("internal error; %s", err)
}
