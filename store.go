package mcstore

import (
	"context"
	"strings"
	"time"

	"github.com/goforj/mcstore/storecore"
	"golang.org/x/sync/errgroup"
)

// Store adapts a backend client to the storecore.Store contract.
//
// Writes pass through the cacheability predicate and reads through the result
// transformer, for single and batch calls alike. A Store holds no state beyond
// its client and hooks and is safe for concurrent use.
type Store struct {
	client      storecore.Client
	isCacheable Predicate
	transform   Transformer
	observer    Observer
	batchLimit  int
}

var _ storecore.Store = (*Store)(nil)

// New binds cfg.Driver with cfg.Options and wraps the resulting client.
//
// Example: in-process store with a custom predicate
//
//	store, err := mcstore.New(mcstore.Config{
//		Driver:      memoryclient.New,
//		Options:     storecore.Options{"default_ttl": time.Minute},
//		IsCacheable: func(v storecore.Value) bool { return v != "" },
//	})
//	if err != nil {
//		panic(err)
//	}
//	_ = store.Set(ctx, "user:42", "Ada", 0)
func New(cfg Config) (*Store, error) {
	client, err := Bind(cfg.Driver, cfg.Options)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Store{
		client:      client,
		isCacheable: cfg.IsCacheable,
		transform:   cfg.ResultTransformer,
		observer:    cfg.Observer,
		batchLimit:  cfg.BatchConcurrency,
	}, nil
}

// NewWith builds a store from a driver, its options and functional options.
func NewWith(driver storecore.Factory, options storecore.Options, opts ...Option) (*Store, error) {
	cfg := Config{Driver: driver, Options: options}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return New(cfg)
}

// Name reports the adapter name.
func (s *Store) Name() string { return Name }

// Client returns the backend client bound at construction.
func (s *Store) Client() storecore.Client { return s.client }

// Driver reports the backend driver when the client exposes one.
func (s *Store) Driver() storecore.Driver { return storecore.DriverOf(s.client) }

// Ready checks backend connectivity when the client supports it.
func (s *Store) Ready(ctx context.Context) error {
	start := time.Now()
	var err error
	if r, ok := s.client.(interface{ Ready(context.Context) error }); ok {
		err = r.Ready(ctx)
	}
	s.observe(ctx, "ready", "", false, err, start)
	return err
}

// Get returns the transformed value for key. A miss yields the transformed NoValue.
func (s *Store) Get(ctx context.Context, key string) (storecore.Value, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	start := time.Now()
	value, ok, err := s.client.Get(ctx, key)
	s.observe(ctx, "get", key, ok, err, start)
	if err != nil {
		return nil, err
	}
	if !ok {
		value = storecore.NoValue
	}
	return s.transform(value), nil
}

// Set writes value under key. Values rejected by the predicate are skipped
// without touching the backend and without error.
func (s *Store) Set(ctx context.Context, key string, value storecore.Value, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if !s.isCacheable(value) {
		return nil
	}
	start := time.Now()
	err := s.client.Set(ctx, key, value, ttl)
	s.observe(ctx, "set", key, false, err, start)
	return err
}

// Del removes key.
func (s *Store) Del(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	err := s.client.Delete(ctx, key)
	s.observe(ctx, "del", key, false, err, start)
	return err
}

// GetMany returns one transformed value per requested key, in request order.
// Keys the backend does not return yield the transformed NoValue.
func (s *Store) GetMany(ctx context.Context, keys ...string) ([]storecore.Value, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []storecore.Value{}, nil
	}
	start := time.Now()
	found, err := s.client.GetMulti(ctx, keys)
	s.observe(ctx, "get_many", strings.Join(keys, ","), len(found) > 0, err, start)
	if err != nil {
		return nil, err
	}
	out := make([]storecore.Value, len(keys))
	for i, key := range keys {
		value, ok := found[key]
		if !ok {
			value = storecore.NoValue
		}
		out[i] = s.transform(value)
	}
	return out, nil
}

// SetMany writes every cacheable entry concurrently. Entries without their own
// TTL use ttl.
//
// SetMany is not atomic: when one write fails the first error is returned, and
// writes that already succeeded stay in place.
func (s *Store) SetMany(ctx context.Context, entries []storecore.Entry, ttl time.Duration) error {
	for _, e := range entries {
		if e.Key == "" {
			return ErrInvalidKey
		}
	}
	accepted := make([]storecore.Entry, 0, len(entries))
	for _, e := range entries {
		if !s.isCacheable(e.Value) {
			continue
		}
		if e.TTL <= 0 {
			e.TTL = ttl
		}
		accepted = append(accepted, e)
	}
	if len(accepted) == 0 {
		return nil
	}
	start := time.Now()
	g := s.group()
	for _, e := range accepted {
		g.Go(func() error {
			return s.client.Set(ctx, e.Key, e.Value, e.TTL)
		})
	}
	err := g.Wait()
	s.observe(ctx, "set_many", entryKeys(accepted), false, err, start)
	return err
}

// DelMany deletes every key concurrently. Like SetMany it is not atomic.
func (s *Store) DelMany(ctx context.Context, keys ...string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	g := s.group()
	for _, key := range keys {
		g.Go(func() error {
			return s.client.Delete(ctx, key)
		})
	}
	err := g.Wait()
	s.observe(ctx, "del_many", strings.Join(keys, ","), false, err, start)
	return err
}

// Reset flushes the whole backing namespace.
func (s *Store) Reset(ctx context.Context) error {
	start := time.Now()
	err := s.client.Flush(ctx)
	s.observe(ctx, "reset", "", false, err, start)
	return err
}

// TTL always fails: the backend exposes no reliable TTL introspection.
func (s *Store) TTL(context.Context, string) (time.Duration, error) {
	return 0, &CapabilityUnsupportedError{Capability: "ttl"}
}

// Keys always fails: the backend cannot enumerate keys.
func (s *Store) Keys(context.Context, string) ([]string, error) {
	return nil, &CapabilityUnsupportedError{Capability: "keys"}
}

func (s *Store) group() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(s.batchLimit)
	return g
}

func (s *Store) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if s.observer == nil {
		return
	}
	s.observer.OnStoreOp(ctx, op, key, hit, err, time.Since(start), s.Driver())
}

func validateKeys(keys []string) error {
	for _, key := range keys {
		if key == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

func entryKeys(entries []storecore.Entry) string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return strings.Join(keys, ",")
}
