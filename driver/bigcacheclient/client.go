// Package bigcacheclient implements storecore.Client on allegro/bigcache.
//
// bigcache only knows one global life window, so every record carries its
// own expiry in an 8 byte header and expired records read as misses.
// Reads never delete; expired records are reclaimed by overwrite, Flush or
// bigcache eviction. TTLs longer than life_window are cut short by eviction.
package bigcacheclient

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
)

const (
	defaultLifeWindow  = time.Hour
	defaultCleanWindow = time.Minute
	headerLen          = 8
)

// Config configures the bigcache driver. Cache is read from the "bigcache"
// option and lets several clients share one instance.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	LifeWindow           time.Duration `mapstructure:"life_window"`
	CleanWindow          time.Duration `mapstructure:"clean_window"`
	MaxEntriesInWindow   int           `mapstructure:"max_entries_in_window"`
	MaxEntrySize         int           `mapstructure:"max_entry_size"`
	HardMaxCacheSizeMB   int           `mapstructure:"hard_max_cache_size_mb"`
	Cache                *bc.BigCache  `mapstructure:"-"`
}

type store struct {
	c        *bc.BigCache
	owned    bool
	cfg      Config
	pipeline *codec.Pipeline
}

// New is the bigcache driver's storecore.Factory.
func New(opts storecore.Options) (storecore.Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if shared, ok := opts["bigcache"].(*bc.BigCache); ok {
		cfg.Cache = shared
	}
	return NewClient(cfg)
}

// NewClient builds the client, creating a bigcache instance unless one is
// injected.
func NewClient(cfg Config) (storecore.Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	s := &store{c: cfg.Cache, cfg: cfg, pipeline: pipeline}
	if s.c == nil {
		if s.c, err = bc.New(context.Background(), bigcacheConfig(cfg)); err != nil {
			return nil, err
		}
		s.owned = true
	}
	return s, nil
}

func bigcacheConfig(cfg Config) bc.Config {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = defaultCleanWindow
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	return conf
}

func (s *store) Driver() storecore.Driver { return storecore.DriverBigcache }

// Close stops the bigcache cleanup goroutine when the client created the cache.
func (s *store) Close() error {
	if s.owned {
		return s.c.Close()
	}
	return nil
}

func (s *store) Get(_ context.Context, key string) (storecore.Value, bool, error) {
	full := s.cfg.Key(key)
	raw, err := s.c.Get(full)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(raw) < headerLen {
		return nil, false, nil
	}
	if exp := int64(binary.BigEndian.Uint64(raw[:headerLen])); time.Now().UnixNano() > exp {
		return nil, false, nil
	}
	value, err := s.pipeline.Decode(raw[headerLen:])
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
	raw := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint64(raw, uint64(time.Now().Add(s.cfg.TTL(ttl)).UnixNano()))
	copy(raw[headerLen:], body)
	return s.c.Set(s.cfg.Key(key), raw)
}

func (s *store) Delete(_ context.Context, key string) error {
	if err := s.c.Delete(s.cfg.Key(key)); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
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

// Flush deletes every entry under the prefix. Keys are collected before
// deleting so the iterator never sees a shard change under it.
func (s *store) Flush(_ context.Context) error {
	scope := s.cfg.Key("")
	var doomed []string
	it := s.c.Iterator()
	for it.SetNext() {
		entry, err := it.Value()
		if err != nil {
			return err
		}
		if strings.HasPrefix(entry.Key(), scope) {
			doomed = append(doomed, entry.Key())
		}
	}
	for _, key := range doomed {
		if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}
