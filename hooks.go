package mcstore

import "github.com/goforj/mcstore/storecore"

// Predicate decides whether a value may be written to the backend.
type Predicate func(storecore.Value) bool

// Transformer post-processes every value read from the backend.
type Transformer func(storecore.Value) storecore.Value

// IsCacheable is the default Predicate. It rejects only NoValue (and untyped
// nil); empty strings, zero numbers, false and empty collections are cacheable.
func IsCacheable(v storecore.Value) bool {
	return !storecore.IsNoValue(v)
}

// Identity is the default Transformer.
func Identity(v storecore.Value) storecore.Value {
	return v
}
