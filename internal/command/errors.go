package command

import "errors"

// Command errors, returned inside Result after the store has been left
// consistent.
var (
	// ErrRejected is set when the gateway refused the write.
	ErrRejected = errors.New("command: rejected by gateway")

	// ErrTimeout is set when the last attempt got no answer in time.
	ErrTimeout = errors.New("command: timed out")

	// ErrUnreachable is set when the retry budget was spent.
	ErrUnreachable = errors.New("command: light unreachable")

	// ErrSuperseded is set when a newer command for the light took over.
	ErrSuperseded = errors.New("command: superseded")
)
