package semq

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/duh-rpc/duh-go"
	v1 "github.com/duh-rpc/duh-go/proto/v1"
	pb "github.com/kapetan-io/semq/proto"
	"github.com/kapetan-io/semq/transport"
	"github.com/kapetan-io/tackle/set"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type ClientConfig struct {
	// Users can provide their own http client with TLS config if needed
	Client *http.Client
	// The address of endpoint in the format `<scheme>://<host>:<port>`
	Endpoint string
}

type Client struct {
	client *duh.Client
	conf   ClientConfig
}

// NewClient creates a new instance of the semq client
func NewClient(conf ClientConfig) (*Client, error) {
	set.Default(&conf.Client, &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     2_000,
			MaxIdleConns:        2_000,
			MaxIdleConnsPerHost: 2_000,
			IdleConnTimeout:     60 * time.Second,
		},
	})

	if len(conf.Endpoint) == 0 {
		return nil, errors.New("conf.Endpoint is empty; must provide an http endpoint")
	}

	return &Client{
		client: &duh.Client{
			Client: conf.Client,
		},
		conf: conf,
	}, nil
}

func (c *Client) QueueSetup(ctx context.Context, req *pb.QueueSetupRequest) error {
	return c.do(ctx, transport.RPCQueueSetup, req, nil)
}

func (c *Client) QueueCleanup(ctx context.Context, req *pb.QueueCleanupRequest) error {
	return c.do(ctx, transport.RPCQueueCleanup, req, nil)
}

func (c *Client) QueuePut(ctx context.Context, req *pb.QueuePutRequest, res *pb.Item) error {
	return c.do(ctx, transport.RPCQueuePut, req, res)
}

// QueueGet retrieves the next item from the queue. If QueueGetRequest.WaitSeconds is at least
// one, QueueGet blocks until an item is available or the context is cancelled.
func (c *Client) QueueGet(ctx context.Context, req *pb.QueueGetRequest, res *pb.QueueGetResponse) error {
	return c.do(ctx, transport.RPCQueueGet, req, res)
}

func (c *Client) QueueSize(ctx context.Context, req *pb.QueueSizeRequest, res *pb.QueueSizeResponse) error {
	return c.do(ctx, transport.RPCQueueSize, req, res)
}

func (c *Client) QueuesDiscover(ctx context.Context, req *pb.QueuesDiscoverRequest,
	res *pb.QueuesDiscoverResponse) error {
	return c.do(ctx, transport.RPCQueuesDiscover, req, res)
}

// do sends the request as a protobuf encoded Struct. If 'res' is nil the response is
// expected to be a v1.Reply.
func (c *Client) do(ctx context.Context, path string, req pb.Message, res pb.Message) error {
	s, err := req.ToStruct()
	if err != nil {
		return duh.NewClientError("while encoding request: %w", err, nil)
	}

	payload, err := proto.Marshal(s)
	if err != nil {
		return duh.NewClientError("while marshaling request payload: %w", err, nil)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s%s", c.conf.Endpoint, path), bytes.NewReader(payload))
	if err != nil {
		return duh.NewClientError("", err, nil)
	}
	r.Header.Set("Content-Type", duh.ContentTypeProtoBuf)

	if res == nil {
		var reply v1.Reply
		return c.client.Do(r, &reply)
	}

	var out structpb.Struct
	if err := c.client.Do(r, &out); err != nil {
		return err
	}
	if err := res.FromStruct(&out); err != nil {
		return duh.NewClientError("while decoding response: %w", err, nil)
	}
	return nil
}

// WithNoTLS returns ClientConfig suitable for use with NON-TLS clients
func WithNoTLS(address string) ClientConfig {
	return ClientConfig{
		Endpoint: fmt.Sprintf("http://%s", address),
		Client:   &http.Client{},
	}
}

// WithTLS returns ClientConfig suitable for use with TLS clients
func WithTLS(tls *tls.Config, address string) ClientConfig {
	return ClientConfig{
		Endpoint: fmt.Sprintf("https://%s", address),
		Client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     tls,
				MaxConnsPerHost:     2_000,
				MaxIdleConns:        2_000,
				MaxIdleConnsPerHost: 2_000,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}
