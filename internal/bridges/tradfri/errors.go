package tradfri

import "errors"

// Domain errors for the Trådfri bridge.
var (
	// ErrHandshake is returned by a Dialer when the DTLS handshake or the
	// post-handshake gateway check fails.
	ErrHandshake = errors.New("tradfri: handshake failed")

	// ErrTimeout is returned when a request receives no response before
	// its deadline.
	ErrTimeout = errors.New("tradfri: request timed out")

	// ErrSessionReset is returned when the session became unusable.
	// The supervisor tears the session down; it is never retried on the
	// same session.
	ErrSessionReset = errors.New("tradfri: session reset")

	// ErrNoSession is returned by Acquire when no session became available
	// before the caller's context ended.
	ErrNoSession = errors.New("tradfri: no session available, retry later")

	// ErrClosed is returned by Acquire after the supervisor has stopped.
	ErrClosed = errors.New("tradfri: supervisor stopped")

	// ErrAlreadyRunning is returned by a second concurrent call to Run.
	ErrAlreadyRunning = errors.New("tradfri: supervisor already running")

	// ErrRejected is returned when the gateway answers with a 4.xx or 5.xx code.
	ErrRejected = errors.New("tradfri: request rejected by gateway")

	// ErrDecode is returned when a gateway payload cannot be parsed.
	ErrDecode = errors.New("tradfri: malformed payload")
)
