package types

import "errors"

// Enumeration parse errors
var (
	// ErrInvalidRole is returned when a string does not name a variable role
	ErrInvalidRole = errors.New("invalid variable role")

	// ErrInvalidSense is returned when a string does not name an objective sense
	ErrInvalidSense = errors.New("invalid objective sense")
)
