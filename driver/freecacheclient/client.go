// Package freecacheclient implements storecore.Client on coocood/freecache,
// a zero-GC in-process byte cache. Expiry has one second resolution; TTLs are
// rounded up to whole seconds.
package freecacheclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
)

const defaultSizeMB = 64

// Config configures the freecache driver. Cache is read from the "freecache"
// option and lets several clients share one instance.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	SizeMB               int              `mapstructure:"size_mb"`
	Cache                *freecache.Cache `mapstructure:"-"`
}

type store struct {
	c        *freecache.Cache
	cfg      Config
	pipeline *codec.Pipeline
}

// New is the freecache driver's storecore.Factory.
func New(opts storecore.Options) (storecore.Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if shared, ok := opts["freecache"].(*freecache.Cache); ok {
		cfg.Cache = shared
	}
	return NewClient(cfg)
}

// NewClient builds the client, allocating a cache of size_mb unless one is injected.
func NewClient(cfg Config) (storecore.Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	if cfg.SizeMB <= 0 {
		cfg.SizeMB = defaultSizeMB
	}
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("freecache: %w", err)
	}
	c := cfg.Cache
	if c == nil {
		c = freecache.NewCache(cfg.SizeMB * 1024 * 1024)
	}
	return &store{c: c, cfg: cfg, pipeline: pipeline}, nil
}

func (s *store) Driver() storecore.Driver { return storecore.DriverFreecache }

func (s *store) Get(_ context.Context, key string) (storecore.Value, bool, error) {
	raw, err := s.c.Get([]byte(s.cfg.Key(key)))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := s.pipeline.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *store) Set(_ context.Context, key string, value storecore.Value, ttl time.Duration) error {
	body, err := s.pipeline.Encode(value)
	if err != nil {
		return err
	}
	return s.c.Set([]byte(s.cfg.Key(key)), body, expireSeconds(s.cfg.TTL(ttl)))
}

func (s *store) Delete(_ context.Context, key string) error {
	s.c.Del([]byte(s.cfg.Key(key)))
	return nil
}

func (s *store) GetMulti(ctx context.Context, keys []string) (map[string]storecore.Value, error) {
	out := make(map[string]storecore.Value, len(keys))
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = value
		}
	}
	return out, nil
}

// Flush deletes every entry under the prefix.
func (s *store) Flush(_ context.Context) error {
	scope := []byte(s.cfg.Key(""))
	var doomed [][]byte
	it := s.c.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if bytes.HasPrefix(entry.Key, scope) {
			doomed = append(doomed, entry.Key)
		}
	}
	for _, key := range doomed {
		s.c.Del(key)
	}
	return nil
}

func expireSeconds(ttl time.Duration) int {
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
