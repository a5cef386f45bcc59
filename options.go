package mcstore

// Option mutates Config when constructing a store.
type Option func(Config) Config

// WithIsCacheable replaces the default cacheability predicate.
func WithIsCacheable(p Predicate) Option {
	return func(cfg Config) Config {
		cfg.IsCacheable = p
		return cfg
	}
}

// WithResultTransformer replaces the identity result transformer.
func WithResultTransformer(t Transformer) Option {
	return func(cfg Config) Config {
		cfg.ResultTransformer = t
		return cfg
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}

// WithBatchConcurrency bounds how many writes or deletes a batch call runs at once.
func WithBatchConcurrency(n int) Option {
	return func(cfg Config) Config {
		cfg.BatchConcurrency = n
		return cfg
	}
}
