// Package command turns user intents into confirmed light writes.
//
// Every operation follows the same path:
//
//	intent ──► delta ──► Store.ApplyOptimistic (gen N, pending)
//	                          │
//	                          ▼
//	               Sender.ApplyDelta (bounded by Config.Timeout)
//	                 │            │             │
//	              success      rejected      timeout / session error
//	                 │            │             │
//	          Confirm(N)     Revert(N)     Revert(N), retry++
//	                                        re-apply (gen N+2) and resend,
//	                                        MarkUnreachable once the budget
//	                                        is spent
//
// A newer command for the same light supersedes the older one: the older
// one's context is cancelled, its unresolved fields are folded into the
// new delta, and whatever it later receives is dropped by the store's
// generation check. Outcomes are returned as values.
package command
