package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrUnknownScene) {
//	    // handle unknown scene name
//	}
var (
	// ErrUnknownScene is returned when no scene key, name or alias matches.
	ErrUnknownScene = errors.New("scene: unknown")

	// ErrSceneExists is returned when a key, name or alias is already taken.
	ErrSceneExists = errors.New("scene: already exists")

	// ErrInvalidScene is returned when scene validation fails.
	ErrInvalidScene = errors.New("scene: invalid")

	// ErrInvalidKey is returned when a scene key format is invalid.
	ErrInvalidKey = errors.New("scene: invalid key")
)
