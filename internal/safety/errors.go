package safety

import "errors"

var (
	// ErrMissingCache indicates the monitor was built without a
	// latest-value cache to read from.
	ErrMissingCache = errors.New("safety: latest-value cache is required")

	// ErrMissingController indicates the monitor was built without a
	// way to issue corrective intensity writes.
	ErrMissingController = errors.New("safety: intensity controller is required")
)
