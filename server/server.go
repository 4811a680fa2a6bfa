// Package server implements the ZProc state server: a single
// authoritative key-value map mutated by strictly serialized commands,
// each commit advancing a monotonic revision and publishing a change
// event before the command's reply is sent. The serialization and
// publish-before-reply ordering are the two invariants the watch
// protocol in package watch depends on.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/observability"
	"github.com/gitter-badger/zproc/zerrors"
)

// Publisher receives the change event produced by each commit. A
// transport.PubServer satisfies this directly.
type Publisher interface {
	Publish(codec.ChangeEvent)
}

type command struct {
	ctx   context.Context
	req   codec.Request
	reply chan codec.Reply
}

// Server owns the authoritative state and the single goroutine that
// mutates it. All exported operations funnel through Submit, which
// enqueues a command for that goroutine rather than taking a lock
// directly — the same "one loop owns the data" shape orchestrate/hub's
// messageLoop uses for its agent registry.
type Server struct {
	id       string
	st       *state
	revision uint64
	registry *AtomicRegistry
	pub      Publisher
	observer observability.Observer
	metrics  *Metrics

	commands chan command
	done     chan struct{}
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithPublisher attaches the change-event sink a commit publishes to.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.pub = p }
}

// WithObserver attaches an observability.Observer for commit and
// ATOMIC-handler events.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithRegistry attaches a pre-populated AtomicRegistry. If omitted, an
// empty one is created and ATOMIC requests naming an unregistered
// handler fail with a ProtocolError.
func WithRegistry(r *AtomicRegistry) Option {
	return func(s *Server) { s.registry = r }
}

// New creates a Server. Call Run to start its command loop before
// submitting any requests.
func New(opts ...Option) *Server {
	s := &Server{
		id:       uuid.NewString(),
		st:       newState(),
		registry: NewAtomicRegistry(),
		observer: observability.NoOpObserver{},
		commands: make(chan command, 64),
		done:     make(chan struct{}),
	}
	s.metrics = NewMetrics()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the server's identity, reported in reply to PING.
func (s *Server) ID() string { return s.id }

// Registry returns the ATOMIC handler registry so callers can
// Register/Replace handlers before or during Run.
func (s *Server) Registry() *AtomicRegistry { return s.registry }

// Run processes commands until ctx is canceled. It is the single
// goroutine that ever touches state, so it must not be called more
// than once concurrently.
func (s *Server) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			reply := s.handle(cmd.ctx, cmd.req)
			select {
			case cmd.reply <- reply:
			case <-cmd.ctx.Done():
			}
		}
	}
}

// Submit enqueues req for processing and waits for its Reply. It is
// the entry point both the Unix-socket ReplyServer's Handler and any
// in-process caller (tests, an embedded worker) use.
func (s *Server) Submit(ctx context.Context, req codec.Request) (codec.Reply, error) {
	cmd := command{ctx: ctx, req: req, reply: make(chan codec.Reply, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return codec.Reply{}, ctx.Err()
	case <-s.done:
		return codec.Reply{}, &zerrors.TransportError{Op: "submit", Err: fmt.Errorf("server stopped")}
	}
	select {
	case rep := <-cmd.reply:
		return rep, nil
	case <-ctx.Done():
		return codec.Reply{}, ctx.Err()
	}
}

// Handler adapts Submit to transport.Handler.
func (s *Server) Handler() func(context.Context, codec.Request) codec.Reply {
	return func(ctx context.Context, req codec.Request) codec.Reply {
		rep, err := s.Submit(ctx, req)
		if err != nil {
			return codec.Reply{ID: req.ID, OK: false, ErrKind: "TransportError", ErrMsg: err.Error()}
		}
		return rep
	}
}

func (s *Server) handle(ctx context.Context, req codec.Request) codec.Reply {
	switch req.Op {
	case codec.OpPing:
		return codec.Reply{ID: req.ID, OK: true, ServerID: s.id, Revision: s.revision}
	case codec.OpGet:
		v, _ := s.st.get(req.Key)
		return codec.Reply{ID: req.ID, OK: true, Value: v, Revision: s.revision}
	case codec.OpGetAll:
		return codec.Reply{ID: req.ID, OK: true, All: s.st.snapshot(), Revision: s.revision}
	case codec.OpSet:
		before := s.st.snapshot()
		s.st.set(req.Key, req.Value)
		return s.commit(ctx, req, before)
	case codec.OpDelete:
		before := s.st.snapshot()
		s.st.delete(req.Key)
		return s.commit(ctx, req, before)
	case codec.OpUpdateMany:
		before := s.st.snapshot()
		for k, v := range req.Keys {
			s.st.set(k, v)
		}
		return s.commit(ctx, req, before)
	case codec.OpAtomic:
		return s.handleAtomic(ctx, req)
	default:
		return errReply(req.ID, "ProtocolError", fmt.Sprintf("unrecognized op %q", req.Op))
	}
}

func (s *Server) handleAtomic(ctx context.Context, req codec.Request) codec.Reply {
	fn, ok := s.registry.Get(req.Handler)
	if !ok {
		return errReply(req.ID, "ProtocolError", fmt.Sprintf("no atomic handler registered: %q", req.Handler))
	}

	before := s.st.snapshot()
	result, err := runAtomic(fn, &Tx{st: s.st}, req.Args)
	if err != nil {
		// The handler may have mutated state through its Tx before
		// failing or panicking; an ATOMIC transaction commits at one
		// revision or not at all, so undo any partial writes before
		// anyone else can observe them.
		s.st.restore(before)
		s.observer.OnEvent(ctx, observability.Event{
			Type:   "server.atomic.failed",
			Level:  observability.LevelError,
			Source: "server.Server.handleAtomic",
			Data:   map[string]any{"handler": req.Handler, "error": err.Error()},
		})
		var ue *zerrors.UserError
		if asUserError(err, &ue) {
			return codec.Reply{ID: req.ID, OK: false, ErrKind: ue.Kind, ErrMsg: ue.Message}
		}
		return errReply(req.ID, "UserError", err.Error())
	}

	rep := s.commit(ctx, req, before)
	rep.Value = result
	return rep
}

// runAtomic calls fn and converts a panic into the same UserError shape
// a returned error produces, so a handler that panics still leaves the
// server's command loop running and reports a clean failure to the
// caller instead of one unrecovered goroutine panic.
func runAtomic(fn AtomicFunc, tx *Tx, args codec.Value) (result codec.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &zerrors.UserError{Kind: "panic", Message: fmt.Sprint(r)}
		}
	}()
	return fn(tx, args)
}

func asUserError(err error, target **zerrors.UserError) bool {
	ue, ok := err.(*zerrors.UserError)
	if ok {
		*target = ue
	}
	return ok
}

// commit diffs the state against before, advances the revision if
// anything changed, publishes the resulting ChangeEvent, and only then
// builds the Reply — the publish-before-reply ordering spec.md's watch
// protocol relies on to guarantee a watcher never misses a transition
// its own request observably caused.
func (s *Server) commit(ctx context.Context, req codec.Request, before map[string]codec.Value) codec.Reply {
	changes := diff(before, s.st.snapshot())
	if len(changes) > 0 {
		s.revision++
		if s.pub != nil {
			s.pub.Publish(codec.ChangeEvent{Revision: s.revision, Changes: changes})
		}
		s.metrics.recordCommit(len(changes))
		s.observer.OnEvent(ctx, observability.Event{
			Type:      "server.commit",
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "server.Server.commit",
			Data:      map[string]any{"revision": s.revision, "keys_changed": len(changes)},
		})
	}
	return codec.Reply{ID: req.ID, OK: true, Revision: s.revision}
}

func errReply(id, kind, msg string) codec.Reply {
	return codec.Reply{ID: id, OK: false, ErrKind: kind, ErrMsg: msg}
}
