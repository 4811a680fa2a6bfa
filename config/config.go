// Package config loads ZProc's deployment configuration: a JSON file
// merged over built-in defaults, the same DefaultConfig/Merge/
// LoadConfig shape the kernel uses for its own subsystem configs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServerConfig controls the state server's listening addresses and
// metrics endpoint. CommandQueueSize and SubscriberBuffer are loaded and
// merged but not read by zproc serve: the server's command queue and
// the pub fan-out's per-subscriber buffer use fixed built-in sizes.
type ServerConfig struct {
	ReplyAddr        string `json:"reply_addr,omitempty"`
	PubAddr          string `json:"pub_addr,omitempty"`
	CommandQueueSize int    `json:"command_queue_size,omitempty"`
	SubscriberBuffer int    `json:"subscriber_buffer,omitempty"`

	// MetricsAddr, if set, is the host:port zproc serve exposes a
	// Prometheus /metrics endpoint on. Empty disables it.
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

const (
	defaultReplyAddr        = "/tmp/zproc-reply.sock"
	defaultPubAddr          = "/tmp/zproc-pub.sock"
	defaultCommandQueueSize = 64
	defaultSubscriberBuffer = 256
)

// DefaultServerConfig returns the built-in defaults for a standalone
// zproc server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReplyAddr:        defaultReplyAddr,
		PubAddr:          defaultPubAddr,
		CommandQueueSize: defaultCommandQueueSize,
		SubscriberBuffer: defaultSubscriberBuffer,
	}
}

// Merge applies non-zero fields from source into c.
func (c *ServerConfig) Merge(source *ServerConfig) {
	if source.ReplyAddr != "" {
		c.ReplyAddr = source.ReplyAddr
	}
	if source.PubAddr != "" {
		c.PubAddr = source.PubAddr
	}
	if source.CommandQueueSize > 0 {
		c.CommandQueueSize = source.CommandQueueSize
	}
	if source.SubscriberBuffer > 0 {
		c.SubscriberBuffer = source.SubscriberBuffer
	}
	if source.MetricsAddr != "" {
		c.MetricsAddr = source.MetricsAddr
	}
}

// DispatchConfig holds the work dispatcher's pool sizing and failure
// policy. zproc map does not read it; it takes these settings from its
// own --worker-cap and --fail-fast flags.
type DispatchConfig struct {
	WorkerCap int  `json:"worker_cap,omitempty"`
	FailFast  bool `json:"fail_fast,omitempty"`
}

// DefaultDispatchConfig returns the built-in dispatcher defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{WorkerCap: 32, FailFast: false}
}

// Merge applies non-zero fields from source into c. FailFast has no
// non-zero sentinel, so loading a file that sets it to false can never
// un-set a default of true; Merge only ever turns FailFast on.
func (c *DispatchConfig) Merge(source *DispatchConfig) {
	if source.WorkerCap > 0 {
		c.WorkerCap = source.WorkerCap
	}
	if source.FailFast {
		c.FailFast = true
	}
}

// Config is the top-level deployment configuration for a zproc server
// process.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Dispatch DispatchConfig `json:"dispatch"`
	Observer string         `json:"observer,omitempty"` // registry key, e.g. "slog" or "noop"
}

// DefaultConfig returns a Config with sensible defaults for all
// subsystems.
func DefaultConfig() Config {
	return Config{
		Server:   DefaultServerConfig(),
		Dispatch: DefaultDispatchConfig(),
		Observer: "slog",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Server.Merge(&source.Server)
	c.Dispatch.Merge(&source.Dispatch)
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON config file, merges it over the defaults,
// and returns the result. A partial file is fine: every field not
// present in it keeps its default. A missing or unparsable file is an
// error.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
