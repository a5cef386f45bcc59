package mcstore_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/goforj/mcstore"
	"github.com/goforj/mcstore/driver/memoryclient"
	"github.com/goforj/mcstore/storecore"
)

func ExampleNew() {
	ctx := context.Background()
	store, err := mcstore.New(mcstore.Config{
		Driver:  memoryclient.New,
		Options: storecore.Options{"default_ttl": "10m"},
	})
	if err != nil {
		panic(err)
	}
	_ = store.Set(ctx, "foo", "bar", 0)
	v, _ := store.Get(ctx, "foo")
	fmt.Println(v)
	// Output: bar
}

func ExampleStore_GetMany() {
	ctx := context.Background()
	store, _ := mcstore.NewWith(memoryclient.New, storecore.Options{"prefix": "example"})
	_ = store.SetMany(ctx, []storecore.Entry{
		{Key: "foo", Value: "bar"},
		{Key: "foo1", Value: "bar1"},
	}, 0)
	values, _ := store.GetMany(ctx, "foo", "boo", "foo1")
	fmt.Println(values)
	// Output: [bar <no value> bar1]
}

func ExampleWithResultTransformer() {
	ctx := context.Background()
	store, _ := mcstore.NewWith(memoryclient.New, storecore.Options{"prefix": "example"},
		mcstore.WithResultTransformer(func(v storecore.Value) storecore.Value {
			if storecore.IsNoValue(v) {
				return "fallback"
			}
			return v
		}),
	)
	v, _ := store.Get(ctx, "missing")
	fmt.Println(v)
	// Output: fallback
}

func ExampleStore_TTL() {
	store, _ := mcstore.NewWith(memoryclient.New, storecore.Options{"prefix": "example"})
	_, err := store.TTL(context.Background(), "foo")
	fmt.Println(err, errors.Is(err, errors.ErrUnsupported))
	// Output: mcstore: ttl is not supported on this store true
}
