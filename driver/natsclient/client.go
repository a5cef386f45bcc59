// Package natsclient implements storecore.Client on a NATS JetStream
// KeyValue bucket.
//
// Bucket-level TTLs are coarse, so each value carries its own expiry in a
// small header unless the bucket is configured to expire entries itself.
package natsclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
	"github.com/nats-io/nats.go"
)

var envelopeMagic = []byte("NCV1")

const envelopeHeader = 12

// ErrNoBucket is returned when neither a KeyValue nor a url and bucket are configured.
var ErrNoBucket = errors.New("nats: kv or url and bucket must be provided")

// KeyValue captures the subset of nats.KeyValue used by the driver.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

// Config configures the NATS driver. KeyValue is read from the "kv" option.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	URL                  string   `mapstructure:"url"`
	Bucket               string   `mapstructure:"bucket"`
	CreateBucket         bool     `mapstructure:"create_bucket"`
	BucketTTL            bool     `mapstructure:"bucket_ttl"`
	KeyValue             KeyValue `mapstructure:"-"`
}

type store struct {
	cfg      Config
	kv       KeyValue
	pipeline *codec.Pipeline
	scope    string
	conn     *nats.Conn
}

// New is the NATS driver's storecore.Factory.
//
// Example: connect and create the bucket on first use
//
//	store, err := mcstore.New(mcstore.Config{
//		Driver: natsclient.New,
//		Options: storecore.Options{
//			"url":           nats.DefaultURL,
//			"bucket":        "cache",
//			"create_bucket": true,
//		},
//	})
func New(opts storecore.Options) (storecore.Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if kv, ok := opts["kv"].(KeyValue); ok {
		cfg.KeyValue = kv
	}
	return NewClient(cfg)
}

// NewClient builds the driver client from a decoded Config.
func NewClient(cfg Config) (storecore.Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	s := &store{
		cfg:      cfg,
		kv:       cfg.KeyValue,
		pipeline: pipeline,
		scope:    "p." + encodeKeyPart(cfg.Prefix) + ".k.",
	}
	if s.kv != nil {
		return s, nil
	}
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if s.conn, s.kv, err = connect(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func connect(cfg Config) (*nats.Conn, KeyValue, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("nats: jetstream: %w", err)
	}
	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) && cfg.CreateBucket {
		kvCfg := &nats.KeyValueConfig{Bucket: cfg.Bucket}
		if cfg.BucketTTL {
			kvCfg.TTL = cfg.DefaultTTL
		}
		kv, err = js.CreateKeyValue(kvCfg)
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("nats: bucket %s: %w", cfg.Bucket, err)
	}
	return nc, kv, nil
}

func (s *store) Driver() storecore.Driver { return storecore.DriverNATS }

// Ready checks the connection when the driver owns one.
func (s *store) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.conn != nil && !s.conn.IsConnected() {
		return fmt.Errorf("nats: connection %s", s.conn.Status())
	}
	return nil
}

// Close drains the connection when the driver opened it.
func (s *store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

func (s *store) Get(ctx context.Context, key string) (storecore.Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	full := s.cacheKey(key)
	entry, err := s.kv.Get(full)
	if isMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return nil, false, nil
	}
	body := entry.Value()
	if !s.cfg.BucketTTL {
		var expired bool
		if body, expired = openEnvelope(body, time.Now()); expired {
			// Only purge the revision that was read; a newer Put wins.
			_ = s.kv.Purge(full, nats.LastRevision(entry.Revision()))
			return nil, false, nil
		}
	}
	value, err := s.pipeline.Decode(body)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *store) Set(ctx context.Context, key string, value storecore.Value, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := s.pipeline.Encode(value)
	if err != nil {
		return err
	}
	if !s.cfg.BucketTTL {
		body = sealEnvelope(body, time.Now().Add(s.cfg.TTL(ttl)))
	}
	_, err = s.kv.Put(s.cacheKey(key), body)
	return err
}

func (s *store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.kv.Delete(s.cacheKey(key))
	if isMiss(err) {
		return nil
	}
	return err
}

// GetMulti reads keys one by one; JetStream KV has no batch get.
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

// Flush purges every key in this client's prefix scope.
func (s *store) Flush(ctx context.Context) error {
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.HasPrefix(key, s.scope) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isMiss(err) {
			return err
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *store) cacheKey(key string) string {
	return s.scope + encodeKeyPart(key)
}

// sealEnvelope prefixes body with the magic and a big-endian unix-milli expiry.
func sealEnvelope(body []byte, expiresAt time.Time) []byte {
	out := make([]byte, envelopeHeader+len(body))
	copy(out[:4], envelopeMagic)
	binary.BigEndian.PutUint64(out[4:envelopeHeader], uint64(expiresAt.UnixMilli()))
	copy(out[envelopeHeader:], body)
	return out
}

// openEnvelope strips the expiry header. Payloads without one pass through.
func openEnvelope(body []byte, now time.Time) ([]byte, bool) {
	if len(body) < envelopeHeader || !bytes.Equal(body[:4], envelopeMagic) {
		return body, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(body[4:envelopeHeader]))
	if expiresAt > 0 && now.UnixMilli() > expiresAt {
		return nil, true
	}
	return body[envelopeHeader:], false
}

func isMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// encodeKeyPart keeps arbitrary keys inside the KV key alphabet.
func encodeKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
