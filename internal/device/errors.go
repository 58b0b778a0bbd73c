package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrLightNotFound) {
//	    // handle not found case
//	}
var (
	// ErrLightNotFound is returned when a light ID is not in the store.
	ErrLightNotFound = errors.New("device: light not found")

	// ErrEmptyDelta is returned when an optimistic write changes nothing.
	ErrEmptyDelta = errors.New("device: empty delta")
)
