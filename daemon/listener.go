package daemon

import (
	"context"
	"io"
	"net"
	"sync/atomic"
)

// InMemoryListener is a net.Listener whose connections are the server ends of net.Pipe
// pairs. The daemon uses it when Config.InMemoryListener is true, so tests can run many
// daemons without binding network ports.
type InMemoryListener struct {
	closed   chan struct{}
	connCh   chan net.Conn
	isClosed atomic.Bool
}

func NewInMemoryListener() *InMemoryListener {
	return &InMemoryListener{
		connCh: make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

// ServeConn hands the connection to the next call to Accept
func (l *InMemoryListener) ServeConn(conn net.Conn) error {
	if l.isClosed.Load() {
		return net.ErrClosed
	}

	select {
	case l.connCh <- conn:
		return nil
	case <-l.closed:
		return net.ErrClosed
	}
}

// DialContext has the signature of http.Transport.DialContext. It returns the client end
// of a new pipe after the server end has been accepted.
func (l *InMemoryListener) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	serverConn, clientConn := net.Pipe()

	select {
	case l.connCh <- serverConn:
		return clientConn, nil
	case <-l.closed:
	case <-ctx.Done():
	}
	_ = serverConn.Close()
	_ = clientConn.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, net.ErrClosed
}

func (l *InMemoryListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.connCh:
		return c, nil
	case <-l.closed:
		return nil, io.EOF
	}
}

func (l *InMemoryListener) Close() error {
	if !l.isClosed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.closed)
	return nil
}

func (l *InMemoryListener) Addr() net.Addr {
	return memAddr("memory-listener")
}

type memAddr string

func (a memAddr) Network() string { return string(a) }
func (a memAddr) String() string  { return string(a) }
