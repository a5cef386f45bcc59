package mcstore

import "github.com/goforj/mcstore/storecore"

// Name identifies this adapter to a caching facade.
const Name = "memcached"

// Config controls how a Store is constructed. Driver and Options are required.
type Config struct {
	// Driver builds the backend client from Options.
	Driver storecore.Factory

	// Options is passed to Driver untouched. It must not be empty.
	Options storecore.Options

	// IsCacheable replaces the default predicate when set.
	IsCacheable Predicate

	// ResultTransformer replaces the identity transformer when set.
	ResultTransformer Transformer

	// Observer receives an event after every operation.
	Observer Observer

	// BatchConcurrency bounds the fan-out of SetMany and DelMany. Zero or
	// negative means unbounded.
	BatchConcurrency int
}

func (c Config) withDefaults() Config {
	if c.IsCacheable == nil {
		c.IsCacheable = IsCacheable
	}
	if c.ResultTransformer == nil {
		c.ResultTransformer = Identity
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = -1
	}
	return c
}
