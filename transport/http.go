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

package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/duh-rpc/duh-go"
	v1 "github.com/duh-rpc/duh-go/proto/v1"
	"github.com/kapetan-io/semq/proto"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	RPCQueueSetup   = "/v1/queue.setup"
	RPCQueueCleanup = "/v1/queue.cleanup"
	RPCQueuePut     = "/v1/queue.put"
	RPCQueueGet     = "/v1/queue.get"
	RPCQueueSize    = "/v1/queue.size"

	RPCQueuesDiscover = "/v1/queues.discover"

	PathMetrics = "/metrics"
	PathHealth  = "/health"
)

// Service is an abstraction separating the public protocol from the underlying implementation.
//
// Abstraction rules dictate that the `transport` package should NOT access any other public interfaces or types.
// To expose new public interface capabilities via the HTTP interface, we must first add that capability to the
// `Service` first.
type Service interface {
	QueueSetup(context.Context, *proto.QueueSetupRequest) error
	QueueCleanup(context.Context, *proto.QueueCleanupRequest) error
	QueuePut(context.Context, *proto.QueuePutRequest, *proto.Item) error
	QueueGet(context.Context, *proto.QueueGetRequest, *proto.QueueGetResponse) error
	QueueSize(context.Context, *proto.QueueSizeRequest, *proto.QueueSizeResponse) error
	QueuesDiscover(context.Context, *proto.QueuesDiscoverRequest, *proto.QueuesDiscoverResponse) error
	Health(context.Context, *HealthResponse) error
}

type HTTPHandler struct {
	duration *prometheus.SummaryVec
	metrics  http.Handler
	service  Service
}

func NewHTTPHandler(s Service, metrics http.Handler) *HTTPHandler {
	return &HTTPHandler{
		duration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "http_handler_duration",
			Help: "The timings of http requests handled by the service",
			Objectives: map[float64]float64{
				0.5:  0.05,
				0.99: 0.001,
			},
		}, []string{"path"}),
		metrics: metrics,
		service: s,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer prometheus.NewTimer(h.duration.WithLabelValues(r.URL.Path)).ObserveDuration()
	ctx := r.Context()

	// Scrapers and probes use GET
	switch r.URL.Path {
	case PathMetrics:
		if h.metrics == nil {
			break
		}
		h.metrics.ServeHTTP(w, r)
		return
	case PathHealth:
		h.Health(ctx, w, r)
		return
	}

	if r.Method != http.MethodPost {
		duh.ReplyWithCode(w, r, duh.CodeBadRequest, nil,
			fmt.Sprintf("http method '%s' not allowed; only POST", r.Method))
		return
	}

	switch r.URL.Path {
	case RPCQueueSetup:
		h.QueueSetup(ctx, w, r)
		return
	case RPCQueueCleanup:
		h.QueueCleanup(ctx, w, r)
		return
	case RPCQueuePut:
		h.QueuePut(ctx, w, r)
		return
	case RPCQueueGet:
		h.QueueGet(ctx, w, r)
		return
	case RPCQueueSize:
		h.QueueSize(ctx, w, r)
		return
	case RPCQueuesDiscover:
		h.QueuesDiscover(ctx, w, r)
		return
	}
	duh.ReplyWithCode(w, r, duh.CodeNotImplemented, nil, "no such method; "+r.URL.Path)
}

// readRequest reads the request body as a Struct and decodes it into 'msg'
func readRequest(r *http.Request, msg proto.Message) error {
	var s structpb.Struct
	if err := duh.ReadRequest(r, &s, 0); err != nil {
		return err
	}
	if err := msg.FromStruct(&s); err != nil {
		return NewInvalidOption(err.Error())
	}
	return nil
}

// reply writes 'msg' to the client as a Struct
func reply(w http.ResponseWriter, r *http.Request, msg proto.Message) {
	s, err := msg.ToStruct()
	if err != nil {
		duh.ReplyError(w, r, NewInternal("while encoding response; %s", err))
		return
	}
	duh.Reply(w, r, duh.CodeOK, s)
}

func (h *HTTPHandler) QueueSetup(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req proto.QueueSetupRequest
	if err := readRequest(r, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}

	if err := h.service.QueueSetup(ctx, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}
	duh.Reply(w, r, duh.CodeOK, &v1.Reply{Code: duh.CodeOK})
}

func (h *HTTPHandler) QueueCleanup(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req proto.QueueCleanupRequest
	if err := readRequest(r, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}

	if err := h.service.QueueCleanup(ctx, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}
	duh.Reply(w, r, duh.CodeOK, &v1.Reply{Code: duh.CodeOK})
}

func (h *HTTPHandler) QueuePut(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req proto.QueuePutRequest
	if err := readRequest(r, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}

	var resp proto.Item
	if err := h.service.QueuePut(ctx, &req, &resp); err != nil {
		duh.ReplyError(w, r, err)
		return
	}
	reply(w, r, &resp)
}

func (h *HTTPHandler) QueueGet(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req proto.QueueGetRequest
	if err := readRequest(r, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}

	var resp proto.QueueGetResponse
	if err := h.service.QueueGet(ctx, &req, &resp); err != nil {
		duh.ReplyError(w, r, err)
		return
	}
	reply(w, r, &resp)
}

func (h *HTTPHandler) QueueSize(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req proto.QueueSizeRequest
	if err := readRequest(r, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}

	var resp proto.QueueSizeResponse
	if err := h.service.QueueSize(ctx, &req, &resp); err != nil {
		duh.ReplyError(w, r, err)
		return
	}
	reply(w, r, &resp)
}

func (h *HTTPHandler) QueuesDiscover(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req proto.QueuesDiscoverRequest
	if err := readRequest(r, &req); err != nil {
		duh.ReplyError(w, r, err)
		return
	}

	var resp proto.QueuesDiscoverResponse
	if err := h.service.QueuesDiscover(ctx, &req, &resp); err != nil {
		duh.ReplyError(w, r, err)
		return
	}
	reply(w, r, &resp)
}

// Describe fetches prometheus metrics to be registered
func (h *HTTPHandler) Describe(ch chan<- *prometheus.Desc) {
	h.duration.Describe(ch)
}

// Collect fetches metrics from the server for use by prometheus
func (h *HTTPHandler) Collect(ch chan<- prometheus.Metric) {
	h.duration.Collect(ch)
}
