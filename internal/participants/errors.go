package participants

import "errors"

// Assignment errors.
var (
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmptyAssignee      = errors.New("assignee email is required")
	ErrAssignmentConflict = errors.New("role assignment conflict")
)
