// Package tradfri connects FrostLux to an IKEA Trådfri gateway.
//
// The gateway speaks CoAP over DTLS with a pre-shared key. This package
// keeps exactly one such session alive and lends it out one request at a
// time.
//
// # Architecture
//
//	┌──────────────┐  Acquire   ┌──────────────┐  Dial   ┌──────────────┐
//	│ dispatcher / │──────────▶│  Supervisor  │────────▶│  DTLSDialer  │
//	│  refresher   │◀── Lease ──│ (state m/c)  │◀────────│ (go-coap +   │
//	└──────────────┘            └──────────────┘ Session │  pion/dtls)  │
//	       │ Lease.Send                ▲                 └──────────────┘
//	       └──── outcome reported ─────┘
//
// The Supervisor moves through Disconnected → Connecting → Connected, and
// from Connected to Backoff when the session is reset, closed, or times
// out too often in a row. Backoff waits initial·2^(attempt-1), capped at a
// ceiling, then connects again. A successful connect resets the attempt
// counter.
//
// Callers never see transport failures as fatal: when no session is
// available Acquire blocks until one is, or fails with ErrNoSession when
// the caller's context ends.
//
// # Resources
//
//   - 15001: list of device instance ids
//   - 15001/{id}: device object (9001 name, 9019 reachable, 3311 light list)
//   - 15011/15012: gateway info, read once after every handshake
//
// Light attributes inside 3311: 5850 on/off, 5851 brightness 0-254,
// 5711 colour temperature in mireds, 5706 colour hex.
//
// # Thread Safety
//
// Supervisor and Client are safe for concurrent use. A Lease may be used
// by one goroutine at a time.
package tradfri
