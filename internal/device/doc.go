// Package device holds the light-state store for FrostLux.
//
// The Store is the single point of truth for every light behind the
// gateway. Two writers race on it: the command dispatcher, which applies
// optimistic values before the gateway answers, and the background
// refresher, which merges authoritative state fetched from the gateway.
// The terminal UI and the MQTT mirror only read snapshots.
//
// # Generations
//
// Each light carries a generation counter that is incremented on every
// accepted write. Writers correlate their follow-up operations with the
// generation they obtained, and the store drops any follow-up whose
// generation is no longer the latest:
//
//	dispatcher                 store                       refresher
//	    │ ApplyOptimistic ──────▶ gen 4, pending
//	    │                          │ ◀────── BeginRefresh() = {id: 4}
//	    │ Confirm(gen 4) ───────▶ gen 5, confirmed
//	    │                          │ ◀────── MergeRefresh(authGen 4)  dropped: 4 < 5
//
// Generations are never replaced by timestamps; ordering must not depend on
// clocks.
//
// # Pending writes
//
// A refresh never overwrites a pending write unless StoreOptions.Margin is
// set. Then a write still pending after Margin refresh cycles, counted by
// BeginRefresh, yields to the next refresh that sees it.
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Every operation holds the
// store mutex only for the duration of a map update and never across I/O.
// Change observers run after the lock is released.
//
// # Usage
//
//	store := device.NewStore(device.StoreOptions{})
//	gen, prev, err := store.ApplyOptimistic(id, device.Delta{On: device.Bool(true)})
//	if err != nil {
//	    return err
//	}
//	if sendErr != nil {
//	    store.Revert(id, gen, prev)
//	} else {
//	    store.Confirm(id, gen)
//	}
package device
