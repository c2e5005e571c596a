package diagnostics

import "errors"

// Sentinel errors for the diagnostics package.
var (
	// ErrNoStore is returned when Collect is called without a metrics store.
	ErrNoStore = errors.New("metrics store is required")
)
