package proxy

import (
	"context"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/watch"
)

// WatchOption configures one of the GetWhen* calls.
type WatchOption func(*watch.Descriptor)

// OnlyLive requires the condition to become true from a commit
// observed after the call was made, ignoring a condition that already
// holds when the call starts.
func OnlyLive() WatchOption {
	return func(d *watch.Descriptor) { d.OnlyLive = true }
}

func (p *Proxy) wait(ctx context.Context, desc watch.Descriptor, opts []WatchOption) (codec.Value, bool, error) {
	desc.Since = p.engine.Revision()
	for _, opt := range opts {
		opt(&desc)
	}
	res, err := p.engine.Wait(ctx, desc)
	if err != nil {
		return codec.Value{}, false, err
	}
	return res.Value, res.Exists, nil
}

// GetWhenChange blocks until the next commit that touches key at all,
// returning whatever value it lands on (which may itself be an
// absence, if the commit deleted the key).
func (p *Proxy) GetWhenChange(ctx context.Context, key string, opts ...WatchOption) (codec.Value, bool, error) {
	return p.wait(ctx, watch.Descriptor{Kind: watch.KindChange, Key: key}, opts)
}

// GetWhenEqual blocks until key's value equals want, resolving
// immediately if it already does (unless OnlyLive is given).
func (p *Proxy) GetWhenEqual(ctx context.Context, key string, want codec.Value, opts ...WatchOption) (codec.Value, bool, error) {
	return p.wait(ctx, watch.Descriptor{Kind: watch.KindEqual, Key: key, Want: want}, opts)
}

// GetWhenNotEqual blocks until key exists with a value that differs
// from want, resolving immediately if that already holds (unless
// OnlyLive is given). An absent or deleted key does not satisfy it.
func (p *Proxy) GetWhenNotEqual(ctx context.Context, key string, want codec.Value, opts ...WatchOption) (codec.Value, bool, error) {
	return p.wait(ctx, watch.Descriptor{Kind: watch.KindNotEqual, Key: key, Want: want}, opts)
}

// GetWhenAvailable blocks until key exists in the state.
func (p *Proxy) GetWhenAvailable(ctx context.Context, key string, opts ...WatchOption) (codec.Value, bool, error) {
	return p.wait(ctx, watch.Descriptor{Kind: watch.KindAvailable, Key: key}, opts)
}

// GetWhen blocks until predicate returns true against the full
// mirrored state. Unlike the key-scoped variants, predicate runs
// again on every commit until it returns true, so it should be cheap
// and side-effect free.
func (p *Proxy) GetWhen(ctx context.Context, predicate func(state map[string]codec.Value) bool, opts ...WatchOption) error {
	_, _, err := p.wait(ctx, watch.Descriptor{Kind: watch.KindPredicate, Predicate: predicate}, opts)
	return err
}
