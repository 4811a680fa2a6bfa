package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/gitter-badger/zproc/codec"
	"github.com/gitter-badger/zproc/proxy"
	"github.com/gitter-badger/zproc/transport"
)

// clientFlags are the address overrides every client subcommand
// shares; without them the proxy falls back to environment discovery,
// the same ZPROC_REPLY_ADDR/ZPROC_PUB_ADDR pair a dispatched worker
// process inherits.
type clientFlags struct {
	replyAddr string
	pubAddr   string
}

func (f clientFlags) connect() (*proxy.Proxy, error) {
	if f.replyAddr == "" && f.pubAddr == "" {
		return proxy.New()
	}
	return proxy.New(proxy.WithAddrs(transport.Addrs{ReplyAddr: f.replyAddr, PubAddr: f.pubAddr}))
}

func addClientFlags(fs *pflag.FlagSet, f *clientFlags) {
	fs.StringVar(&f.replyAddr, "reply-addr", "", "Unix socket path for the request/reply channel (overrides discovery)")
	fs.StringVar(&f.pubAddr, "pub-addr", "", "Unix socket path for the change-event channel (overrides discovery)")
}

// parseValue decodes a JSON literal from the command line into a
// codec.Value, so `zproc set count 3` and `zproc set name '"alice"'`
// both work the way a JSON-speaking CLI's users expect.
func parseValue(raw string) (codec.Value, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return codec.Value{}, fmt.Errorf("invalid JSON value %q: %w", raw, err)
	}
	return codec.ToValue(v)
}

func printValue(v codec.Value) {
	out, err := json.Marshal(v.Interface())
	if err != nil {
		fmt.Println(v.Interface())
		return
	}
	fmt.Println(string(out))
}
