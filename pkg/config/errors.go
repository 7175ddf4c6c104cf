package config

import "errors"

// Sentinel errors for configuration failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidConfig indicates the configuration is syntactically
	// or semantically invalid (bad YAML, out-of-range values, etc.).
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrUnknownAction indicates a chain override names an action type
	// the planner does not know.
	ErrUnknownAction = errors.New("config: unknown chain action")
)
