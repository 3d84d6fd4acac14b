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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/duh-rpc/duh-go"
	"github.com/kapetan-io/semq"
	"github.com/kapetan-io/semq/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Daemon struct {
	service  *semq.Service
	client   *semq.Client
	servers  []*http.Server
	wg       sync.WaitGroup
	Listener net.Listener
	conf     Config
	pipes    *http.Transport
}

func NewDaemon(ctx context.Context, conf Config) (*Daemon, error) {
	conf.SetDefaults()

	if err := os.MkdirAll(conf.MetastorePath, 0755); err != nil {
		return nil, fmt.Errorf("while creating metastore path: %w", err)
	}

	s, err := semq.NewService(conf.ServiceConfig)
	if err != nil {
		return nil, err
	}

	conf.Log = conf.Log.With("code.namespace", "Daemon")
	d := &Daemon{
		conf:    conf,
		service: s,
	}
	return d, d.Start(ctx)
}

func (d *Daemon) Start(ctx context.Context) error {
	registry := prometheus.NewRegistry()

	handler := transport.NewHTTPHandler(d.service, promhttp.InstrumentMetricHandler(
		registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	))
	registry.MustRegister(handler)
	registry.MustRegister(d.service)

	switch {
	case d.conf.InMemoryListener:
		d.spawnInMemory(handler)
		return nil
	case d.conf.ServerTLS() != nil:
		return d.spawnHTTPS(ctx, handler)
	}
	return d.spawnHTTP(ctx, handler)
}

func (d *Daemon) Shutdown(ctx context.Context) error {
	if err := d.service.Shutdown(ctx); err != nil {
		return err
	}
	for _, srv := range d.servers {
		d.conf.Log.Info("Shutting down server", "address", srv.Addr)
		_ = srv.Shutdown(ctx)
	}
	if d.pipes != nil {
		d.pipes.CloseIdleConnections()
	}
	d.wg.Wait()
	d.conf.Log.LogAttrs(ctx, slog.LevelDebug, "Shutdown complete")
	d.servers = nil
	return nil
}

func (d *Daemon) Service() *semq.Service {
	return d.service
}

func (d *Daemon) MustClient() *semq.Client {
	c, err := d.Client()
	if err != nil {
		panic(fmt.Sprintf("failed to init daemon client - '%s'", err))
	}
	return c
}

func (d *Daemon) Client() (*semq.Client, error) {
	var err error
	if d.client != nil {
		return d.client, nil
	}

	if d.conf.InMemoryListener {
		d.client, err = semq.NewClient(semq.ClientConfig{
			Client:   &http.Client{Transport: d.pipes},
			Endpoint: "http://" + d.Listener.Addr().String(),
		})
		return d.client, err
	}

	if d.conf.TLS != nil {
		d.client, err = semq.NewClient(semq.WithTLS(d.conf.ClientTLS(), d.Listener.Addr().String()))
		return d.client, err
	}
	d.client, err = semq.NewClient(semq.WithNoTLS(d.Listener.Addr().String()))
	return d.client, err
}

// spawnInMemory serves the handler over an InMemoryListener
func (d *Daemon) spawnInMemory(h http.Handler) {
	listener := NewInMemoryListener()
	d.Listener = listener
	d.pipes = &http.Transport{DialContext: listener.DialContext}

	srv := &http.Server{
		ErrorLog: slog.NewLogLogger(d.conf.Log.Handler(), slog.LevelError),
		Addr:     listener.Addr().String(),
		Handler:  h,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.conf.Log.Info("In memory listener ready")
		if err := srv.Serve(listener); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				d.conf.Log.Error("while serving in memory listener", "error", err)
			}
		}
	}()
	d.servers = append(d.servers, srv)
}

func (d *Daemon) spawnHTTPS(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		ErrorLog:  slog.NewLogLogger(d.conf.Log.Handler(), slog.LevelError),
		TLSConfig: d.conf.ServerTLS().Clone(),
		Addr:      d.conf.ListenAddress,
		Handler:   mux,
	}

	var err error
	d.Listener, err = net.Listen("tcp", d.conf.ListenAddress)
	if err != nil {
		return fmt.Errorf("while starting HTTPS listener: %w", err)
	}
	srv.Addr = d.Listener.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.conf.Log.Info("HTTPS Listening ...", "address", d.Listener.Addr().String())
		if err := srv.ServeTLS(d.Listener, "", ""); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				d.conf.Log.Error("while starting TLS HTTP server", "error", err)
			}
		}
	}()
	if err := duh.WaitForConnect(ctx, d.Listener.Addr().String(), d.conf.ClientTLS()); err != nil {
		return err
	}

	d.servers = append(d.servers, srv)
	return nil
}

func (d *Daemon) spawnHTTP(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		ErrorLog: slog.NewLogLogger(d.conf.Log.Handler(), slog.LevelError),
		Addr:     d.conf.ListenAddress,
		Handler:  h,
	}
	var err error
	d.Listener, err = net.Listen("tcp", d.conf.ListenAddress)
	if err != nil {
		return fmt.Errorf("while starting HTTP listener: %w", err)
	}
	srv.Addr = d.Listener.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.conf.Log.Info("HTTP Listening ...", "address", d.Listener.Addr().String())
		if err := srv.Serve(d.Listener); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				d.conf.Log.Error("while starting HTTP server", "error", err)
			}
		}
	}()

	if err := duh.WaitForConnect(ctx, d.Listener.Addr().String(), nil); err != nil {
		return err
	}

	d.servers = append(d.servers, srv)
	return nil
}
