package config

import "errors"

// Sentinel errors returned (wrapped) by Validate and Load.
var (
	// ErrInvalidHost means gateway.host or gateway.port cannot be dialled.
	ErrInvalidHost = errors.New("config: invalid gateway host")

	// ErrMissingCredential means the gateway identity or pre-shared key is absent.
	ErrMissingCredential = errors.New("config: missing gateway credential")

	// ErrInvalidConfig covers every other out-of-range setting.
	ErrInvalidConfig = errors.New("config: invalid setting")
)
