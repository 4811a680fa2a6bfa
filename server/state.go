package server

import "github.com/gitter-badger/zproc/codec"

// state is the server's authoritative key-value map. It is only ever
// touched from the single command-processing goroutine in Server.Run,
// so it carries no lock of its own — the serialization spec.md asks
// for ATOMIC transactions comes for free from that single-goroutine
// discipline rather than from an explicit mutex around this type.
type state struct {
	data map[string]codec.Value
}

func newState() *state {
	return &state{data: make(map[string]codec.Value)}
}

func (s *state) get(key string) (codec.Value, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *state) set(key string, v codec.Value) {
	s.data[key] = v
}

func (s *state) delete(key string) {
	delete(s.data, key)
}

// snapshot returns a shallow copy of the whole map, used for GET_ALL
// and as the pre-mutation view an ATOMIC handler's failure or panic
// rolls back to.
func (s *state) snapshot() map[string]codec.Value {
	out := make(map[string]codec.Value, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// restore replaces the live map wholesale with a prior snapshot,
// undoing any writes a Tx made against it. Used to keep ATOMIC
// transactions all-or-nothing: a handler that errors or panics after
// mutating state through its Tx must not leave the partial result
// visible to later commands.
func (s *state) restore(snapshot map[string]codec.Value) {
	s.data = snapshot
}

// diff compares before and after snapshots key-by-key and returns a
// KeyChange only for keys whose presence or value actually changed,
// the structural-equality comparison spec.md requires so that setting
// a key to the value it already holds does not advance the revision
// or emit a change event.
func diff(before, after map[string]codec.Value) map[string]codec.KeyChange {
	changes := make(map[string]codec.KeyChange)
	for k, av := range after {
		bv, existed := before[k]
		if !existed || !codec.Equal(bv, av) {
			changes[k] = codec.KeyChange{
				Before:        bv,
				After:         av,
				ExistedBefore: existed,
				ExistsAfter:   true,
			}
		}
	}
	for k, bv := range before {
		if _, stillExists := after[k]; !stillExists {
			changes[k] = codec.KeyChange{
				Before:        bv,
				ExistedBefore: true,
				ExistsAfter:   false,
			}
		}
	}
	return changes
}
