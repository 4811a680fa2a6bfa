// Package exampletasks registers a couple of illustrative task
// handlers into dispatch.DefaultRegistry so the stock zproc-worker
// binary has something to run out of the box. A real deployment
// building its own worker replaces this package with one that
// registers its own handlers from its own init().
package exampletasks

import (
	"fmt"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/dispatch"
)

func init() {
	dispatch.DefaultRegistry.Register("identity", func(item codec.Value) (codec.Value, error) {
		return item, nil
	})

	dispatch.DefaultRegistry.Register("uppercase", func(item codec.Value) (codec.Value, error) {
		s, ok := item.Interface().(string)
		if !ok {
			return codec.Value{}, fmt.Errorf("exampletasks: uppercase expects a string item, got %T", item.Interface())
		}
		out := make([]byte, len(s))
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			out[i] = c
		}
		return codec.MustValue(string(out)), nil
	})
}
