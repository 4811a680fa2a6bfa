package transport

import (
	"bufio"
	"context"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/observability"
	"github.com/gitter-badger/zproc/zerrors"
)

// subscriberBuffer is the number of pending ChangeEvents a slow reader
// may fall behind by before new events start being dropped for it.
// Dropped events are reported in Metrics so an operator can see a
// watcher is starving before it silently misses a transition.
const subscriberBuffer = 256

type subscriber struct {
	id     string
	conn   net.Conn
	prefix string // empty means no server-side pre-filter
	queue  *boundedChannel[codec.ChangeEvent]
}

// PubServer fans a stream of codec.ChangeEvent out to every connected
// subscriber. Each subscriber gets its own bounded queue and writer
// goroutine so one stalled reader cannot block Publish for the others;
// this mirrors the per-peer registry drpcorg-chotki's protocol layer
// keeps in an xsync.MapOf, used here for the same reason: many
// goroutines add/remove/range concurrently and the hot path is a read.
type PubServer struct {
	addr        string
	observer    observability.Observer
	metrics     Metrics
	subscribers *xsync.MapOf[string, *subscriber]

	listener net.Listener
	wg       sync.WaitGroup
}

// NewPubServer creates a fan-out server bound to a Unix socket at addr.
func NewPubServer(addr string, observer observability.Observer) (*PubServer, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	_ = os.Remove(addr)
	l, err := net.Listen("unix", addr)
	if err != nil {
		return nil, &zerrors.TransportError{Op: "listen", Err: err}
	}
	return &PubServer{
		addr:        addr,
		observer:    observer,
		subscribers: xsync.NewMapOf[string, *subscriber](),
		listener:    l,
	}, nil
}

// Addr returns the socket path this server is bound to.
func (s *PubServer) Addr() string { return s.addr }

// Metrics returns a snapshot of subscriber and publish counters.
func (s *PubServer) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// Serve accepts subscriber connections until ctx is canceled.
func (s *PubServer) Serve(ctx context.Context) error {
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

func (s *PubServer) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// The handshake is a single length-delimited frame carrying an
	// optional key-prefix filter; a client that wants every change
	// sends an empty prefix.
	req, err := codec.DecodeRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}

	sub := &subscriber{
		id:     uuid.NewString(),
		conn:   conn,
		prefix: req.Key,
		queue:  newBoundedChannel[codec.ChangeEvent](ctx, subscriberBuffer),
	}
	s.subscribers.Store(sub.id, sub)
	s.metrics.recordConnect(1)
	defer func() {
		s.subscribers.Delete(sub.id)
		s.metrics.recordConnect(-1)
		sub.queue.Close()
	}()

	for {
		ev, err := sub.queue.Receive(ctx)
		if err != nil {
			return
		}
		if err := codec.EncodeChangeEvent(conn, ev); err != nil {
			return
		}
	}
}

// Publish fans ev out to every subscriber whose prefix filter matches
// at least one changed key. A subscriber with a full queue has the
// event dropped rather than stalling the publisher; watchers are
// expected to re-sync via a GET after reconnecting, the same tolerance
// for missed intermediate states spec.md's watch protocol already
// requires of `only_live` watchers.
func (s *PubServer) Publish(ev codec.ChangeEvent) {
	s.metrics.recordPublish(1)
	s.subscribers.Range(func(_ string, sub *subscriber) bool {
		if sub.prefix != "" && !eventMatchesPrefix(ev, sub.prefix) {
			return true
		}
		if !sub.queue.TrySend(ev) {
			s.metrics.recordDrop()
		}
		return true
	})
}

func eventMatchesPrefix(ev codec.ChangeEvent, prefix string) bool {
	for key := range ev.Changes {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// SubscriberCount returns the number of currently connected subscribers.
func (s *PubServer) SubscriberCount() int {
	return s.subscribers.Size()
}

// Close stops accepting connections and removes the socket file.
func (s *PubServer) Close() error {
	err := s.listener.Close()
	os.Remove(s.addr)
	return err
}

// Subscriber receives the change-event stream from a PubServer.
type Subscriber struct {
	conn net.Conn
	r    *bufio.Reader
}

// Subscribe connects to a PubServer at addr. prefix, if non-empty,
// asks the server to pre-filter to changes touching keys with that
// prefix; the proxy's watch engine still re-checks its own predicate
// against every event it receives, so an empty prefix is always safe,
// just less efficient.
func Subscribe(addr, prefix string) (*Subscriber, error) {
	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, &zerrors.TransportError{Op: "dial", Err: err}
	}
	if err := codec.EncodeRequest(conn, codec.Request{Key: prefix}); err != nil {
		conn.Close()
		return nil, &zerrors.TransportError{Op: "handshake", Err: err}
	}
	return &Subscriber{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Next blocks for the next ChangeEvent, or returns an error if ctx is
// canceled or the connection is lost.
func (s *Subscriber) Next(ctx context.Context) (codec.ChangeEvent, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	ev, err := codec.DecodeChangeEvent(s.r)
	if err != nil {
		return codec.ChangeEvent{}, &zerrors.TransportError{Op: "recv", Err: err}
	}
	return ev, nil
}

// Close closes the subscription connection.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}
