package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goforj/mcstore"
	"github.com/goforj/mcstore/storecore"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// TTL is passed to writes. Defaults to one minute.
	TTL time.Duration
	// ExpiryTTL enables the expiry check when positive.
	ExpiryTTL time.Duration
	// ExpiryWait is how long the harness waits for expiry. Defaults to twice ExpiryTTL.
	ExpiryWait time.Duration
	// SkipReset disables the reset assertion for shared backends.
	SkipReset bool
}

// RunStoreContract builds stores from driver and options and checks the
// adapter contract against them.
func RunStoreContract(t *testing.T, driver storecore.Factory, options storecore.Options, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}
	mustNew := func(cfg mcstore.Config) *mcstore.Store {
		t.Helper()
		cfg.Driver = driver
		cfg.Options = options
		store, err := mcstore.New(cfg)
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		return store
	}

	plain := mustNew(mcstore.Config{})

	// Construction validation.
	if _, err := mcstore.New(mcstore.Config{Options: options}); !errors.Is(err, mcstore.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing driver, got %v", err)
	}
	if _, err := mcstore.New(mcstore.Config{Driver: driver}); !errors.Is(err, mcstore.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing options, got %v", err)
	}

	// Set/Get round-trip, including an empty string.
	if err := plain.Set(ctx, key("alpha"), "value", ttl); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, err := plain.Get(ctx, key("alpha")); err != nil || got != "value" {
		t.Fatalf("unexpected get result: %#v err=%v", got, err)
	}
	if err := plain.Set(ctx, key("empty"), "", ttl); err != nil {
		t.Fatalf("set empty failed: %v", err)
	}
	if got, err := plain.Get(ctx, key("empty")); err != nil || got != "" {
		t.Fatalf("expected empty string to be cacheable, got %#v err=%v", got, err)
	}

	// Misses read as NoValue.
	if got, err := plain.Get(ctx, key("missing")); err != nil || !storecore.IsNoValue(got) {
		t.Fatalf("expected NoValue for miss, got %#v err=%v", got, err)
	}

	// NoValue is never written.
	if err := plain.Set(ctx, key("novalue"), storecore.NoValue, ttl); err != nil {
		t.Fatalf("set NoValue failed: %v", err)
	}
	if got, _ := plain.Get(ctx, key("novalue")); !storecore.IsNoValue(got) {
		t.Fatalf("expected NoValue write to be skipped, got %#v", got)
	}

	// Custom predicate gates single and batch writes.
	gated := mustNew(mcstore.Config{IsCacheable: func(v storecore.Value) bool { return v != "skip" }})
	if err := gated.Set(ctx, key("gated"), "skip", ttl); err != nil {
		t.Fatalf("gated set failed: %v", err)
	}
	if err := gated.SetMany(ctx, []storecore.Entry{
		{Key: key("gated-a"), Value: "keep"},
		{Key: key("gated-b"), Value: "skip"},
	}, ttl); err != nil {
		t.Fatalf("gated set many failed: %v", err)
	}
	got, err := plain.GetMany(ctx, key("gated"), key("gated-a"), key("gated-b"))
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	if !storecore.IsNoValue(got[0]) || got[1] != "keep" || !storecore.IsNoValue(got[2]) {
		t.Fatalf("unexpected gated contents: %#v", got)
	}

	// Transformer applies to hits and misses, single and batch.
	transformed := mustNew(mcstore.Config{ResultTransformer: wrap})
	if v, _ := transformed.Get(ctx, key("alpha")); v != "<value>" {
		t.Fatalf("expected transformed hit, got %#v", v)
	}
	if v, _ := transformed.Get(ctx, key("missing")); v != "<miss>" {
		t.Fatalf("expected transformed miss, got %#v", v)
	}
	many, err := transformed.GetMany(ctx, key("alpha"), key("missing"))
	if err != nil || len(many) != 2 || many[0] != "<value>" || many[1] != "<miss>" {
		t.Fatalf("unexpected transformed batch: %#v err=%v", many, err)
	}

	// Batch order follows the request, duplicates included.
	if err := plain.SetMany(ctx, []storecore.Entry{
		{Key: key("k1"), Value: "v1"},
		{Key: key("k2"), Value: "v2", TTL: ttl},
	}, ttl); err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	many, err = plain.GetMany(ctx, key("k2"), key("nope"), key("k1"), key("k2"))
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	if len(many) != 4 || many[0] != "v2" || !storecore.IsNoValue(many[1]) || many[2] != "v1" || many[3] != "v2" {
		t.Fatalf("unexpected batch order: %#v", many)
	}
	if empty, err := plain.GetMany(ctx); err != nil || len(empty) != 0 {
		t.Fatalf("expected empty batch, got %#v err=%v", empty, err)
	}

	// Deletes.
	if err := plain.Del(ctx, key("alpha")); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if err := plain.DelMany(ctx, key("k1"), key("k2")); err != nil {
		t.Fatalf("del many failed: %v", err)
	}
	many, _ = plain.GetMany(ctx, key("alpha"), key("k1"), key("k2"))
	for i, v := range many {
		if !storecore.IsNoValue(v) {
			t.Fatalf("expected deleted key %d to miss, got %#v", i, v)
		}
	}

	// Unsupported capabilities fail the same way every time.
	for i := 0; i < 2; i++ {
		if _, err := plain.TTL(ctx, key("alpha")); !errors.Is(err, errors.ErrUnsupported) {
			t.Fatalf("expected ttl to be unsupported, got %v", err)
		}
		if _, err := plain.Keys(ctx, "*"); !errors.Is(err, errors.ErrUnsupported) {
			t.Fatalf("expected keys to be unsupported, got %v", err)
		}
	}

	if opts.ExpiryTTL > 0 {
		wait := opts.ExpiryWait
		if wait <= 0 {
			wait = 2 * opts.ExpiryTTL
		}
		if err := plain.Set(ctx, key("ttl"), "v", opts.ExpiryTTL); err != nil {
			t.Fatalf("set ttl failed: %v", err)
		}
		if err := waitForMiss(ctx, plain, key("ttl"), wait); err != nil {
			t.Fatalf("expected ttl expiry: %v", err)
		}
	}

	if !opts.SkipReset {
		if err := plain.Set(ctx, key("reset"), "v", ttl); err != nil {
			t.Fatalf("set before reset failed: %v", err)
		}
		if err := plain.Reset(ctx); err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		if v, err := plain.Get(ctx, key("reset")); err != nil || !storecore.IsNoValue(v) {
			t.Fatalf("expected reset to clear key, got %#v err=%v", v, err)
		}
	}
}

func wrap(v storecore.Value) storecore.Value {
	if storecore.IsNoValue(v) {
		return "<miss>"
	}
	s, _ := v.(string)
	return "<" + s + ">"
}

func waitForMiss(ctx context.Context, store storecore.Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		v, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if storecore.IsNoValue(v) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("key " + key + " still present after " + wait.String())
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
