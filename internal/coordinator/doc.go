// Package coordinator mediates all device state access to the vendor cloud.
//
// A Coordinator owns the freshness decision for the shared device state
// cache and bounds the number of concurrent batch reads with a FIFO gate of
// size two. Reads that wait longer than the gate timeout (65s) fail with
// cloud.ErrTimeout.
//
// # Usage
//
//	coord, err := coordinator.New(coordinator.Options{
//	    Client: client,
//	    Cache:  devicestate.NewCache(30 * time.Second),
//	    Logger: log.With("component", "coordinator"),
//	})
//	states, err := coord.GetDeviceStates(ctx, ids, true)
//	if states.FromCache {
//	    // no remote call was made
//	}
package coordinator
