// Package redisclient implements storecore.Client on redis/go-redis.
//
// Values go through the codec pipeline and are stored as plain strings under
// "<prefix>:<key>". Flush removes only keys under the prefix.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
	"github.com/redis/go-redis/v9"
)

const flushScanCount = 200

// ErrNoClient is returned when neither a client nor an address is configured.
var ErrNoClient = errors.New("redis: client or addr must be provided")

// Client captures the subset of redis.UniversalClient the driver uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Config configures the redis driver. Client is read from the "client"
// option; otherwise URL or Addr is dialed lazily by go-redis.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	URL                  string `mapstructure:"url"`
	Addr                 string `mapstructure:"addr"`
	Username             string `mapstructure:"username"`
	Password             string `mapstructure:"password"`
	DB                   int    `mapstructure:"db"`
	Client               Client `mapstructure:"-"`
}

type store struct {
	cfg      Config
	client   Client
	pipeline *codec.Pipeline
	owned    io.Closer
}

// New is the redis driver's storecore.Factory.
//
// Example: reuse an application redis client
//
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store, err := mcstore.New(mcstore.Config{
//		Driver:  redisclient.New,
//		Options: storecore.Options{"client": rdb, "prefix": "users"},
//	})
func New(opts storecore.Options) (storecore.Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if client, ok := opts["client"].(Client); ok {
		cfg.Client = client
	}
	return NewClient(cfg)
}

// NewClient builds the driver client from a decoded Config.
func NewClient(cfg Config) (storecore.Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	s := &store{cfg: cfg, client: cfg.Client, pipeline: pipeline}
	if s.client != nil {
		return s, nil
	}
	var ro *redis.Options
	switch {
	case cfg.URL != "":
		if ro, err = redis.ParseURL(cfg.URL); err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
	case cfg.Addr != "":
		ro = &redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, ErrNoClient
	}
	rdb := redis.NewClient(ro)
	s.client, s.owned = rdb, rdb
	return s, nil
}

func (s *store) Driver() storecore.Driver { return storecore.DriverRedis }

func (s *store) Ready(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client when the driver created it.
func (s *store) Close() error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close()
}

func (s *store) Get(ctx context.Context, key string) (storecore.Value, bool, error) {
	body, err := s.client.Get(ctx, s.cfg.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err := s.pipeline.Decode(body)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *store) Set(ctx context.Context, key string, value storecore.Value, ttl time.Duration) error {
	body, err := s.pipeline.Encode(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.cfg.Key(key), body, s.cfg.TTL(ttl)).Err()
}

func (s *store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.cfg.Key(key)).Err()
}

func (s *store) GetMulti(ctx context.Context, keys []string) (map[string]storecore.Value, error) {
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.cfg.Key(key)
	}
	raw, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) != len(keys) {
		return nil, fmt.Errorf("redis: mget returned %d values for %d keys", len(raw), len(keys))
	}
	out := make(map[string]storecore.Value, len(keys))
	for i, item := range raw {
		var body []byte
		switch v := item.(type) {
		case nil:
			continue
		case string:
			body = []byte(v)
		case []byte:
			body = v
		default:
			return nil, fmt.Errorf("redis: unexpected mget value %T", item)
		}
		value, err := s.pipeline.Decode(body)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = value
	}
	return out, nil
}

func (s *store) Flush(ctx context.Context) error {
	pattern := escapeGlob(s.cfg.Key("")) + "*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, flushScanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
