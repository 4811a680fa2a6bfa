// Package proxy is the client-side handle a worker process uses to
// talk to a ZProc state server: plain reads and writes over the reply
// channel, ATOMIC transactions by handler name, and the five
// GetWhen* reactive reads built on package watch's matching engine fed
// by the change-event subscription.
package proxy

import (
	"context"
	"sync"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/observability"
	"github.com/gitter-badger/zproc/transport"
	"github.com/gitter-badger/zproc/watch"
	"github.com/gitter-badger/zproc/zerrors"
)

// Proxy is a connected client handle. It owns one ReplyClient
// connection and one change-event subscription; both are safe for the
// concurrent use a single worker process's goroutines need; it is not
// meant to be shared across OS processes, each of which should hold
// its own Proxy discovered from the environment.
type Proxy struct {
	client   *transport.ReplyClient
	sub      *transport.Subscriber
	engine   *watch.Engine
	observer observability.Observer

	mu     sync.Mutex
	closed bool
	subErr error
}

// Option configures New.
type Option func(*options)

type options struct {
	addrs    transport.Addrs
	observer observability.Observer
}

// WithAddrs overrides environment discovery with explicit socket
// paths, primarily for tests and for an in-process server embedded in
// the same binary as its own client.
func WithAddrs(addrs transport.Addrs) Option {
	return func(o *options) { o.addrs = addrs }
}

// WithObserver attaches an observability.Observer for connection and
// watch-subscription events.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// New connects a Proxy to a state server. Without WithAddrs, the
// server's address pair is discovered from ZPROC_REPLY_ADDR and
// ZPROC_PUB_ADDR; a process launched without either set fails fast
// with a *zerrors.NotConfiguredError instead of hanging on a dial to
// an empty path.
func New(opts ...Option) (*Proxy, error) {
	o := &options{observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.addrs.ReplyAddr == "" || o.addrs.PubAddr == "" {
		discovered, err := transport.Discover()
		if err != nil {
			return nil, err
		}
		if o.addrs.ReplyAddr == "" {
			o.addrs.ReplyAddr = discovered.ReplyAddr
		}
		if o.addrs.PubAddr == "" {
			o.addrs.PubAddr = discovered.PubAddr
		}
	}

	client, err := transport.Dial(o.addrs.ReplyAddr)
	if err != nil {
		return nil, err
	}

	all, revision, err := getAllWithRevision(client)
	if err != nil {
		client.Close()
		return nil, err
	}

	sub, err := transport.Subscribe(o.addrs.PubAddr, "")
	if err != nil {
		client.Close()
		return nil, err
	}

	p := &Proxy{
		client:   client,
		sub:      sub,
		engine:   watch.NewEngine(all, revision),
		observer: o.observer,
	}
	go p.pump()
	return p, nil
}

func getAllWithRevision(client *transport.ReplyClient) (map[string]codec.Value, uint64, error) {
	rep, err := client.Call(context.Background(), codec.Request{Op: codec.OpGetAll})
	if err != nil {
		return nil, 0, err
	}
	return rep.All, rep.Revision, nil
}

// pump feeds every ChangeEvent the subscription delivers into the
// watch engine, until the connection is closed.
func (p *Proxy) pump() {
	for {
		ev, err := p.sub.Next(context.Background())
		if err != nil {
			p.mu.Lock()
			p.subErr = err
			p.mu.Unlock()
			return
		}
		p.engine.Apply(ev)
	}
}

// Close releases the underlying connections.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err1 := p.client.Close()
	err2 := p.sub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Get returns the current value of key, or the zero Value and false
// if it does not exist.
func (p *Proxy) Get(ctx context.Context, key string) (codec.Value, bool, error) {
	rep, err := p.client.Call(ctx, codec.Request{Op: codec.OpGet, Key: key})
	if err != nil {
		return codec.Value{}, false, err
	}
	return rep.Value, !rep.Value.IsNull(), nil
}

// Snapshot returns every key currently in the state.
func (p *Proxy) Snapshot(ctx context.Context) (map[string]codec.Value, uint64, error) {
	rep, err := p.client.Call(ctx, codec.Request{Op: codec.OpGetAll})
	if err != nil {
		return nil, 0, err
	}
	return rep.All, rep.Revision, nil
}

// Set stores value under key, returning the revision the commit landed at.
func (p *Proxy) Set(ctx context.Context, key string, value codec.Value) (uint64, error) {
	rep, err := p.client.Call(ctx, codec.Request{Op: codec.OpSet, Key: key, Value: value})
	if err != nil {
		return 0, err
	}
	return rep.Revision, nil
}

// Delete removes key if present.
func (p *Proxy) Delete(ctx context.Context, key string) (uint64, error) {
	rep, err := p.client.Call(ctx, codec.Request{Op: codec.OpDelete, Key: key})
	if err != nil {
		return 0, err
	}
	return rep.Revision, nil
}

// Update applies every key in kv in a single commit.
func (p *Proxy) Update(ctx context.Context, kv map[string]codec.Value) (uint64, error) {
	rep, err := p.client.Call(ctx, codec.Request{Op: codec.OpUpdateMany, Keys: kv})
	if err != nil {
		return 0, err
	}
	return rep.Revision, nil
}

// Atomic invokes the server-registered handler named name with args,
// returning its result. The handler runs with exclusive access to
// state on the server, serialized against every other command.
func (p *Proxy) Atomic(ctx context.Context, name string, args codec.Value) (codec.Value, error) {
	rep, err := p.client.Call(ctx, codec.Request{Op: codec.OpAtomic, Handler: name, Args: args})
	if err != nil {
		return codec.Value{}, err
	}
	if !rep.OK {
		return codec.Value{}, &zerrors.UserError{Kind: rep.ErrKind, Message: rep.ErrMsg}
	}
	return rep.Value, nil
}
