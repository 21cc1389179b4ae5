package lifecycle

import "errors"

// Orchestration errors.
var (
	ErrMissingIncident = errors.New("incident is required")
	ErrMissingSnapshot = errors.New("snapshot is required")
)
