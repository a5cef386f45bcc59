// Package storefake provides a recording storecore.Client for tests.
package storefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/mcstore/storecore"
)

// Op identifies a client operation for assertions.
type Op string

const (
	OpGet      Op = "get"
	OpSet      Op = "set"
	OpDelete   Op = "delete"
	OpGetMulti Op = "get_multi"
	OpFlush    Op = "flush"
)

// Call is one recorded client invocation.
type Call struct {
	Op    Op
	Key   string
	Value storecore.Value
	TTL   time.Duration
}

// Client is a deterministic map-backed client that records every call.
// Failures can be injected per operation, or per operation and key.
type Client struct {
	mu      sync.Mutex
	data    map[string]storecore.Value
	calls   []Call
	fail    map[Op]error
	failKey map[Op]map[string]error
	options storecore.Options
}

// New creates an empty Client.
func New() *Client {
	return &Client{
		data:    make(map[string]storecore.Value),
		fail:    make(map[Op]error),
		failKey: make(map[Op]map[string]error),
	}
}

// Factory returns a storecore.Factory that hands out c and remembers the options.
func (c *Client) Factory() storecore.Factory {
	return func(opts storecore.Options) (storecore.Client, error) {
		c.mu.Lock()
		c.options = opts
		c.mu.Unlock()
		return c, nil
	}
}

func (c *Client) Driver() storecore.Driver { return storecore.DriverFake }

// Options returns the options the factory received.
func (c *Client) Options() storecore.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

// Fail makes every call to op return err. A nil err clears the failure.
func (c *Client) Fail(op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, op)
		return
	}
	c.fail[op] = err
}

// FailKey makes calls to op for key return err.
func (c *Client) FailKey(op Op, key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failKey[op] == nil {
		c.failKey[op] = make(map[string]error)
	}
	c.failKey[op][key] = err
}

func (c *Client) Get(_ context.Context, key string) (storecore.Value, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: OpGet, Key: key})
	if err := c.failure(OpGet, key); err != nil {
		return nil, false, err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *Client) Set(_ context.Context, key string, value storecore.Value, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: OpSet, Key: key, Value: value, TTL: ttl})
	if err := c.failure(OpSet, key); err != nil {
		return err
	}
	c.data[key] = value
	return nil
}

func (c *Client) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: OpDelete, Key: key})
	if err := c.failure(OpDelete, key); err != nil {
		return err
	}
	delete(c.data, key)
	return nil
}

func (c *Client) GetMulti(_ context.Context, keys []string) (map[string]storecore.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.record(Call{Op: OpGetMulti, Key: key})
	}
	if err := c.fail[OpGetMulti]; err != nil {
		return nil, err
	}
	out := make(map[string]storecore.Value, len(keys))
	for _, key := range keys {
		if v, ok := c.data[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

func (c *Client) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: OpFlush})
	if err := c.fail[OpFlush]; err != nil {
		return err
	}
	c.data = make(map[string]storecore.Value)
	return nil
}

// Seed writes key directly, bypassing call recording.
func (c *Client) Seed(key string, value storecore.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Peek reads key directly, bypassing call recording.
func (c *Client) Peek(key string) (storecore.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

// Len returns the number of stored keys.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Calls returns a copy of the recorded calls in arrival order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Reset clears recorded calls.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Count returns calls for op+key.
func (c *Client) Count(op Op, key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, call := range c.calls {
		if call.Op == op && call.Key == key {
			n++
		}
	}
	return n
}

// Total returns total calls for an op across keys.
func (c *Client) Total(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, call := range c.calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

// AssertCalled verifies key was touched by op the expected number of times.
func (c *Client) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := c.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (c *Client) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := c.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (c *Client) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := c.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// AssertNoCalls ensures the client was never touched.
func (c *Client) AssertNoCalls(t *testing.T) {
	t.Helper()
	if calls := c.Calls(); len(calls) != 0 {
		t.Fatalf("expected no client calls, got %+v", calls)
	}
}

func (c *Client) record(call Call) {
	c.calls = append(c.calls, call)
}

func (c *Client) failure(op Op, key string) error {
	if err := c.failKey[op][key]; err != nil {
		return err
	}
	return c.fail[op]
}
