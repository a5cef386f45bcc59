package mcstore

import (
	"context"
	"time"

	"github.com/goforj/mcstore/storecore"
)

// Observer receives events for store operations.
// It is called after each operation completes, from the calling goroutine.
// Batch operations report their keys joined with ",".
type Observer interface {
	OnStoreOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver storecore.Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver storecore.Driver)

// OnStoreOp implements Observer.
func (f ObserverFunc) OnStoreOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver storecore.Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}
