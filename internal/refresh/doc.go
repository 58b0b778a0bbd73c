// Package refresh periodically reconciles the light store with the gateway.
//
// Each cycle records the store's generations, fetches every light through
// the supervisor, and merges the result light by light. A merge that
// would overwrite a newer or pending write is rejected by the store and
// retried on the next cycle. A failed fetch is logged and skipped; after
// Config.StaleAfter consecutive failures the store is flagged stale, which
// the UI shows until the next successful cycle.
package refresh
