package room

import "errors"

// Error kinds shared by the Room Store and Task Engine, per spec §7. These
// are sentinel values wrapped with context via fmt.Errorf("%w: ...", Err...)
// so callers can still errors.Is against the kind.
var (
	ErrNotInitialized = errors.New("room not initialized")
	ErrValidation     = errors.New("validation error")
	ErrInvalidJSON    = errors.New("invalid json")
	ErrIO             = errors.New("io error")
)
