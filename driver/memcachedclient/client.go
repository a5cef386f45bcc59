// Package memcachedclient implements storecore.Client over the memcached text
// protocol.
//
// Keys are namespaced with the configured prefix and routed to one server by
// hash, so every client configured with the same address list agrees on key
// placement. Each server gets a small pool of idle connections.
package memcachedclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
)

const (
	defaultAddress     = "127.0.0.1:11211"
	defaultPoolSize    = 16
	defaultDialTimeout = 3 * time.Second
	maxKeyLength       = 250
	// Relative expirations beyond 30 days are read by memcached as unix timestamps.
	maxRelativeExpiry = 30 * 24 * time.Hour
)

var (
	// ErrMalformedKey is returned for keys memcached cannot carry.
	ErrMalformedKey = errors.New("memcached: key is too long or contains invalid characters")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("memcached: client is closed")
)

var dialMemcached = func(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, network, addr)
}

// Config configures the memcached driver.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	Addresses            []string      `mapstructure:"addresses"`
	Hosts                []string      `mapstructure:"hosts"`
	PoolSize             int           `mapstructure:"pool_size"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout"`
}

// Client is a pooled memcached client.
type Client struct {
	cfg      Config
	pipeline *codec.Pipeline
	pools    map[string]chan *conn

	mu     sync.RWMutex
	closed bool
}

type conn struct {
	addr string
	nc   net.Conn
	rw   *bufio.ReadWriter
}

// New is the memcached driver's storecore.Factory. It does not dial; the
// first operation or Ready does.
//
// Example: two-node cluster with msgpack values
//
//	store, err := mcstore.New(mcstore.Config{
//		Driver: memcachedclient.New,
//		Options: storecore.Options{
//			"addresses": "10.0.0.1:11211,10.0.0.2:11211",
//			"codec":     "msgpack",
//		},
//	})
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
	return NewClient(cfg)
}

// NewClient builds a *Client from an already decoded Config.
//
// Defaults:
// - Addresses: Hosts, then []string{"127.0.0.1:11211"} when empty
// - PoolSize: 16 idle connections per server
// - DialTimeout: 3s
func NewClient(cfg Config) (*Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	addrs := make([]string, 0, len(cfg.Addresses)+len(cfg.Hosts))
	for _, addr := range append(append([]string{}, cfg.Addresses...), cfg.Hosts...) {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		addrs = []string{defaultAddress}
	}
	cfg.Addresses, cfg.Hosts = addrs, nil
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("memcached: %w", err)
	}
	pools := make(map[string]chan *conn, len(addrs))
	for _, addr := range addrs {
		pools[addr] = make(chan *conn, cfg.PoolSize)
	}
	return &Client{cfg: cfg, pipeline: pipeline, pools: pools}, nil
}

func (c *Client) Driver() storecore.Driver { return storecore.DriverMemcached }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Ready asks every server for its version.
func (c *Client) Ready(ctx context.Context) error {
	for _, addr := range c.cfg.Addresses {
		err := c.withConn(ctx, addr, func(mc *conn) error {
			line, err := mc.command("version\r\n")
			if err != nil {
				return err
			}
			if !strings.HasPrefix(line, "VERSION ") {
				return fmt.Errorf("memcached readiness failed: %s", line)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (storecore.Value, bool, error) {
	full, err := c.key(key)
	if err != nil {
		return nil, false, err
	}
	var body []byte
	var hit bool
	err = c.withConn(ctx, c.serverFor(full), func(mc *conn) error {
		found, err := mc.retrieve([]string{full})
		if err != nil {
			return err
		}
		body, hit = found[full]
		return nil
	})
	if err != nil || !hit {
		return nil, false, err
	}
	value, err := c.pipeline.Decode(body)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value storecore.Value, ttl time.Duration) error {
	full, err := c.key(key)
	if err != nil {
		return err
	}
	body, err := c.pipeline.Encode(value)
	if err != nil {
		return err
	}
	return c.withConn(ctx, c.serverFor(full), func(mc *conn) error {
		if _, err := fmt.Fprintf(mc.rw, "set %s 0 %d %d\r\n", full, expiry(c.cfg.TTL(ttl)), len(body)); err != nil {
			return err
		}
		if _, err := mc.rw.Write(body); err != nil {
			return err
		}
		line, err := mc.command("\r\n")
		if err != nil {
			return err
		}
		if line != "STORED" {
			return &protocolError{op: "set", line: line}
		}
		return nil
	})
}

func (c *Client) Delete(ctx context.Context, key string) error {
	full, err := c.key(key)
	if err != nil {
		return err
	}
	return c.withConn(ctx, c.serverFor(full), func(mc *conn) error {
		line, err := mc.command("delete " + full + "\r\n")
		if err != nil {
			return err
		}
		if line != "DELETED" && line != "NOT_FOUND" {
			return &protocolError{op: "delete", line: line}
		}
		return nil
	})
}

// GetMulti issues one multi-key get per server that owns any of keys.
func (c *Client) GetMulti(ctx context.Context, keys []string) (map[string]storecore.Value, error) {
	byServer := make(map[string][]string)
	original := make(map[string]string, len(keys))
	for _, key := range keys {
		full, err := c.key(key)
		if err != nil {
			return nil, err
		}
		if _, seen := original[full]; seen {
			continue
		}
		original[full] = key
		addr := c.serverFor(full)
		byServer[addr] = append(byServer[addr], full)
	}

	out := make(map[string]storecore.Value, len(keys))
	for addr, fulls := range byServer {
		var found map[string][]byte
		err := c.withConn(ctx, addr, func(mc *conn) error {
			var err error
			found, err = mc.retrieve(fulls)
			return err
		})
		if err != nil {
			return nil, err
		}
		for full, body := range found {
			key, ok := original[full]
			if !ok {
				continue
			}
			value, err := c.pipeline.Decode(body)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
	}
	return out, nil
}

// Flush invalidates every item on every server. Memcached has no
// per-prefix flush, so other tenants of the same servers are cleared too.
func (c *Client) Flush(ctx context.Context) error {
	for _, addr := range c.cfg.Addresses {
		err := c.withConn(ctx, addr, func(mc *conn) error {
			line, err := mc.command("flush_all\r\n")
			if err != nil {
				return err
			}
			if line != "OK" {
				return &protocolError{op: "flush", line: line}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close drops every pooled connection. Later operations fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, pool := range c.pools {
		for drained := false; !drained; {
			select {
			case mc := <-pool:
				_ = mc.nc.Close()
			default:
				drained = true
			}
		}
	}
	return nil
}

func (c *Client) key(key string) (string, error) {
	full := c.cfg.Key(key)
	if len(full) > maxKeyLength {
		return "", ErrMalformedKey
	}
	for i := 0; i < len(full); i++ {
		if full[i] <= ' ' || full[i] == 0x7f {
			return "", ErrMalformedKey
		}
	}
	return full, nil
}

func (c *Client) serverFor(full string) string {
	addrs := c.cfg.Addresses
	if len(addrs) == 1 {
		return addrs[0]
	}
	return addrs[crc32.ChecksumIEEE([]byte(full))%uint32(len(addrs))]
}

// withConn runs fn on a pooled connection to addr. Connections that saw an
// I/O or protocol error are closed instead of returned to the pool.
func (c *Client) withConn(ctx context.Context, addr string, fn func(*conn) error) error {
	mc, err := c.acquire(ctx, addr)
	if err != nil {
		return err
	}
	err = fn(mc)
	var perr *protocolError
	c.release(mc, err != nil && !errors.As(err, &perr))
	return err
}

func (c *Client) acquire(ctx context.Context, addr string) (*conn, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var mc *conn
	select {
	case mc = <-c.pools[addr]:
	default:
		nc, err := dialMemcached(ctx, "tcp", addr, c.cfg.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("memcached dial %s: %w", addr, err)
		}
		mc = &conn{addr: addr, nc: nc, rw: bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))}
	}
	deadline, _ := ctx.Deadline()
	if err := mc.nc.SetDeadline(deadline); err != nil {
		_ = mc.nc.Close()
		return nil, err
	}
	return mc, nil
}

func (c *Client) release(mc *conn, bad bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if bad || c.closed {
		_ = mc.nc.Close()
		return
	}
	select {
	case c.pools[mc.addr] <- mc:
	default:
		_ = mc.nc.Close()
	}
}

// command writes req, flushes, and returns the first response line without CRLF.
func (mc *conn) command(req string) (string, error) {
	if _, err := mc.rw.WriteString(req); err != nil {
		return "", err
	}
	if err := mc.rw.Flush(); err != nil {
		return "", err
	}
	return mc.readLine()
}

func (mc *conn) readLine() (string, error) {
	line, err := mc.rw.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// retrieve sends "get k1 k2 ..." and collects VALUE blocks until END.
func (mc *conn) retrieve(keys []string) (map[string][]byte, error) {
	line, err := mc.command("get " + strings.Join(keys, " ") + "\r\n")
	if err != nil {
		return nil, err
	}
	found := make(map[string][]byte, len(keys))
	for line != "END" {
		// VALUE <key> <flags> <bytes> [<cas unique>]
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "VALUE" {
			return nil, fmt.Errorf("memcached: unexpected response: %s", line)
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("memcached: parse length %q", fields[3])
		}
		body := make([]byte, n+2)
		if _, err := io.ReadFull(mc.rw, body); err != nil {
			return nil, err
		}
		if string(body[n:]) != "\r\n" {
			return nil, fmt.Errorf("memcached: corrupt value block for %s", fields[1])
		}
		found[fields[1]] = body[:n]
		if line, err = mc.readLine(); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// protocolError is a well-formed but unexpected server reply. The
// connection stays usable after one.
type protocolError struct {
	op   string
	line string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("memcached %s failed: %s", e.op, e.line)
}

func expiry(ttl time.Duration) int64 {
	if ttl > maxRelativeExpiry {
		return time.Now().Add(ttl).Unix()
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
