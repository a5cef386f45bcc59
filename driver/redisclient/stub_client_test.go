package redisclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubClient is an in-memory Client used for unit tests.
type stubClient struct {
	mu    sync.Mutex
	store map[string]string
	ttl   map[string]time.Time

	getErr  error
	setErr  error
	mgetErr error
	scanErr error
	delErr  error
	pingErr error

	lastMatch string
}

func newStubClient() *stubClient {
	return &stubClient{
		store: make(map[string]string),
		ttl:   make(map[string]time.Time),
	}
}

func (c *stubClient) expireIfNeeded(key string) {
	if deadline, ok := c.ttl[key]; ok && time.Now().After(deadline) {
		delete(c.ttl, key)
		delete(c.store, key)
	}
}

func (c *stubClient) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if val, ok := c.store[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	bytes, _ := value.([]byte)
	c.store[key] = string(bytes)
	if expiration > 0 {
		c.ttl[key] = time.Now().Add(expiration)
	} else {
		delete(c.ttl, key)
	}
	cmd.SetVal("OK")
	return cmd
}

func (c *stubClient) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewSliceCmd(ctx)
	if c.mgetErr != nil {
		cmd.SetErr(c.mgetErr)
		return cmd
	}
	vals := make([]interface{}, len(keys))
	for i, key := range keys {
		c.expireIfNeeded(key)
		if val, ok := c.store[key]; ok {
			vals[i] = val
		}
	}
	cmd.SetVal(vals)
	return cmd
}

func (c *stubClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if c.delErr != nil {
		cmd.SetErr(c.delErr)
		return cmd
	}
	var removed int64
	for _, key := range keys {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok {
			delete(c.store, key)
			delete(c.ttl, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (c *stubClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewScanCmd(ctx, nil)
	if c.scanErr != nil {
		cmd.SetErr(c.scanErr)
		return cmd
	}
	c.lastMatch = match
	var keys []string
	for key := range c.store {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok && globMatch(match, key) {
			keys = append(keys, key)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}

func (c *stubClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.pingErr != nil {
		cmd.SetErr(c.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

// globMatch follows redis MATCH semantics for *, ?, [set] and backslash
// escapes. Ranges inside sets are not supported.
func globMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := len(s); i >= 0; i-- {
				if globMatch(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		case '[':
			end := strings.IndexByte(pattern, ']')
			if end < 0 || len(s) == 0 || !strings.ContainsRune(pattern[1:end], rune(s[0])) {
				return false
			}
			pattern, s = pattern[end+1:], s[1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}
