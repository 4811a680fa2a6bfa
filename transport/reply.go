package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/observability"
	"github.com/gitter-badger/zproc/zerrors"
)

// Handler answers one Request. It is invoked from whichever connection
// goroutine received the request; the server package supplies a
// Handler that itself serializes access to shared state, so Handler
// implementations here may run concurrently with each other.
type Handler func(context.Context, codec.Request) codec.Reply

// ReplyServer accepts Unix socket connections and answers each Request
// frame it reads with the Reply its Handler returns. Connections are
// long-lived and may carry many requests; each is served by its own
// goroutine, matching the one-goroutine-per-peer style of
// drpcorg-chotki's connection accept loop.
type ReplyServer struct {
	addr     string
	handler  Handler
	observer observability.Observer
	metrics  Metrics

	listener net.Listener
	wg       sync.WaitGroup
}

// NewReplyServer creates a server bound to a Unix socket at addr. addr
// is removed first if a stale socket file is left over from a prior
// crashed run.
func NewReplyServer(addr string, handler Handler, observer observability.Observer) (*ReplyServer, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	_ = os.Remove(addr)
	l, err := net.Listen("unix", addr)
	if err != nil {
		return nil, &zerrors.TransportError{Op: "listen", Err: err}
	}
	return &ReplyServer{addr: addr, handler: handler, observer: observer, listener: l}, nil
}

// Addr returns the socket path this server is bound to.
func (s *ReplyServer) Addr() string { return s.addr }

// Metrics returns a snapshot of connection and request counters.
func (s *ReplyServer) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// Serve accepts connections until ctx is canceled or the listener is
// closed. It blocks; callers typically run it in its own goroutine.
func (s *ReplyServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return &zerrors.TransportError{Op: "accept", Err: err}
			}
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *ReplyServer) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.metrics.recordConnect(1)
	defer s.metrics.recordConnect(-1)

	r := bufio.NewReader(conn)
	for {
		req, err := codec.DecodeRequest(r)
		if err != nil {
			return
		}
		s.metrics.recordRequest()
		reply := s.handler(ctx, req)
		if err := codec.EncodeReply(conn, reply); err != nil {
			s.observer.OnEvent(ctx, observability.Event{
				Type:   "transport.reply.write_failed",
				Level:  observability.LevelWarning,
				Source: "transport.ReplyServer",
				Data:   map[string]any{"error": err.Error()},
			})
			return
		}
	}
}

// Close stops accepting new connections and removes the socket file.
func (s *ReplyServer) Close() error {
	err := s.listener.Close()
	os.Remove(s.addr)
	return err
}

// ReplyClient sends Requests to a ReplyServer over a single persistent
// connection. It is safe for concurrent use: requests are serialized
// through an internal mutex, since a Unix socket byte stream has no
// notion of independent request pipelining without a correlation
// protocol the server side would also have to implement.
type ReplyClient struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a ReplyServer at addr.
func Dial(addr string) (*ReplyClient, error) {
	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, &zerrors.TransportError{Op: "dial", Err: err}
	}
	return &ReplyClient{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Call sends req and waits for the matching Reply. The wire protocol
// is strictly synchronous (write request, read reply) so ordering
// comes for free; ctx cancellation closes the underlying connection to
// unblock a pending read.
func (c *ReplyClient) Call(ctx context.Context, req codec.Request) (codec.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	if err := codec.EncodeRequest(c.conn, req); err != nil {
		return codec.Reply{}, &zerrors.TransportError{Op: "send", Err: err}
	}
	rep, err := codec.DecodeReply(c.r)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return codec.Reply{}, fmt.Errorf("%w", ctx.Err())
		}
		return codec.Reply{}, &zerrors.TransportError{Op: "recv", Err: err}
	}
	return rep, nil
}

// Close closes the underlying connection.
func (c *ReplyClient) Close() error {
	return c.conn.Close()
}
