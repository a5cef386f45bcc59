// Package nullclient implements a storecore.Client that stores nothing.
// Reads always miss and writes succeed, which makes it a safe stand-in when
// caching is disabled.
package nullclient

import (
	"context"
	"time"

	"github.com/goforj/mcstore/storecore"
)

type store struct{}

// New is the null driver's storecore.Factory. Options are ignored.
func New(storecore.Options) (storecore.Client, error) {
	return store{}, nil
}

func (store) Driver() storecore.Driver { return storecore.DriverNull }

func (store) Get(context.Context, string) (storecore.Value, bool, error) {
	return nil, false, nil
}

func (store) Set(context.Context, string, storecore.Value, time.Duration) error { return nil }

func (store) Delete(context.Context, string) error { return nil }

func (store) GetMulti(context.Context, []string) (map[string]storecore.Value, error) {
	return map[string]storecore.Value{}, nil
}

func (store) Flush(context.Context) error { return nil }
