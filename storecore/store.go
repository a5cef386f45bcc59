package storecore

import (
	"context"
	"time"
)

// Value is any payload a backend client knows how to persist.
type Value = any

type noValue struct{}

func (noValue) String() string { return "<no value>" }

// NoValue marks an absent entry on reads and a value with nothing to cache on writes.
var NoValue Value = noValue{}

// IsNoValue reports whether v is NoValue or an untyped nil.
func IsNoValue(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(noValue)
	return ok
}

// Entry is one key/value pair of a batch write. A zero TTL defers to the
// ttl given to the batch call.
type Entry struct {
	Key   string
	Value Value
	TTL   time.Duration
}

// Client is the backend handle a Store delegates to.
//
// Get reports a miss with ok=false and a nil error. GetMulti omits absent keys
// from the returned map.
type Client interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	Set(ctx context.Context, key string, value Value, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetMulti(ctx context.Context, keys []string) (map[string]Value, error)
	Flush(ctx context.Context) error
}

// Factory builds a Client from a driver-defined options bundle.
type Factory func(Options) (Client, error)

// Store is the uniform cache contract exposed to a caching facade.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (Value, error)
	Set(ctx context.Context, key string, value Value, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	GetMany(ctx context.Context, keys ...string) ([]Value, error)
	SetMany(ctx context.Context, entries []Entry, ttl time.Duration) error
	DelMany(ctx context.Context, keys ...string) error
	Reset(ctx context.Context) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}
