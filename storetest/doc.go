// Package storetest provides a reusable contract suite for storecore.Store
// adapters built on any driver.
//
// Driver packages run it from their own tests:
//
//	func TestRedisContract(t *testing.T) {
//		client := newTestRedisClient(t)
//		storetest.RunStoreContract(t, redisclient.New, storecore.Options{
//			"client": client,
//			"prefix": "test",
//		}, storetest.Options{CaseName: t.Name()})
//	}
//
// Values used by the suite are strings, so every codec round-trips them
// without type drift.
package storetest
