// Package memoryclient provides an in-process storecore.Client backed by
// patrickmn/go-cache. Values are kept as-is; []byte values are cloned on the
// way in and out. Keys are namespaced by the configured prefix, so clients
// sharing one cache only see and flush their own entries.
package memoryclient

import (
	"context"
	"strings"
	"time"

	"github.com/goforj/mcstore/storecore"
	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = 10 * time.Minute

// Config holds the memory driver options.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`

	// Cache shares an existing go-cache instance between clients. It is read
	// from the "cache" option.
	Cache *gocache.Cache `mapstructure:"-"`
}

// Client is a go-cache backed client. Unless a shared cache is injected,
// each Client owns its own namespace.
type Client struct {
	cache   *gocache.Cache
	cfg     Config
	options storecore.Options
}

// New is the memory driver's storecore.Factory.
func New(opts storecore.Options) (storecore.Client, error) {
	c, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Open builds a *Client from opts.
func Open(opts storecore.Options) (*Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if shared, ok := opts["cache"].(*gocache.Cache); ok && shared != nil {
		cfg.Cache = shared
	} else {
		cfg.Cache = gocache.New(cfg.DefaultTTL, cfg.CleanupInterval)
	}
	return &Client{
		cache:   cfg.Cache,
		cfg:     cfg,
		options: opts,
	}, nil
}

func (c *Client) Driver() storecore.Driver { return storecore.DriverMemory }

// Options returns the options bundle the client was built from.
func (c *Client) Options() storecore.Options { return c.options }

// Config returns the decoded driver configuration.
func (c *Client) Config() Config { return c.cfg }

func (c *Client) Get(_ context.Context, key string) (storecore.Value, bool, error) {
	item, ok := c.cache.Get(c.cfg.Key(key))
	if !ok {
		return nil, false, nil
	}
	return clone(item), true, nil
}

func (c *Client) Set(_ context.Context, key string, value storecore.Value, ttl time.Duration) error {
	c.cache.Set(c.cfg.Key(key), clone(value), c.cfg.TTL(ttl))
	return nil
}

func (c *Client) Delete(_ context.Context, key string) error {
	c.cache.Delete(c.cfg.Key(key))
	return nil
}

func (c *Client) GetMulti(_ context.Context, keys []string) (map[string]storecore.Value, error) {
	out := make(map[string]storecore.Value, len(keys))
	for _, key := range keys {
		if item, ok := c.cache.Get(c.cfg.Key(key)); ok {
			out[key] = clone(item)
		}
	}
	return out, nil
}

// Flush removes every entry under the client's prefix. Entries written by
// clients with other prefixes on a shared cache are left alone.
func (c *Client) Flush(_ context.Context) error {
	ns := c.cfg.Key("")
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, ns) {
			c.cache.Delete(k)
		}
	}
	return nil
}

// Len reports the number of unexpired items under the client's prefix.
func (c *Client) Len() int {
	ns := c.cfg.Key("")
	n := 0
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, ns) {
			n++
		}
	}
	return n
}

func clone(v storecore.Value) storecore.Value {
	body, ok := v.([]byte)
	if !ok {
		return v
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}
