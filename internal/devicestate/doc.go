// Package devicestate holds the last known state of remote cloud devices.
//
// A device exposes a list of capability states, each identified by a
// namespace plus an optional name and instance. The Cache keeps these lists
// per device id together with one refresh timestamp and a TTL:
//
//	cache := devicestate.NewCache(30 * time.Second)
//	cache.UpdateBatch([]string{"d1"}, results)
//	power, ok := cache.GetValue("d1", devicestate.Selector{
//	    Namespace: "Alexa.PowerController",
//	    Name:      "powerState",
//	})
//
// # Thread Safety
//
// The Cache is safe for concurrent use. Returned states are copies.
package devicestate
