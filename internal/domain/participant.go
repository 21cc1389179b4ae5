package domain

import "time"

// RoleType represents a functional role held on an incident.
type RoleType string

// Role types. The set is closed; assignment rejects anything else.
const (
	RoleTypeCommander RoleType = "incident_commander"
	RoleTypeReporter  RoleType = "reporter"
	RoleTypeLiaison   RoleType = "liaison"
	RoleTypeScribe    RoleType = "scribe"
	RoleTypeObserver  RoleType = "observer"
)

// IsValid checks if the role type is valid.
func (r RoleType) IsValid() bool {
	switch r {
	case RoleTypeCommander, RoleTypeReporter, RoleTypeLiaison, RoleTypeScribe, RoleTypeObserver:
		return true
	}
	return false
}

// ParticipantRole is one entry in an incident's role history. The history
// is append-only: assigning a new holder marks the previous entry inactive
// instead of deleting it, so at most one entry per (incident, role type)
// is active at any time.
type ParticipantRole struct {
	ID            string     `json:"id"`
	IncidentID    string     `json:"incident_id"`
	Role          RoleType   `json:"role"`
	AssigneeEmail string     `json:"assignee_email"`
	Active        bool       `json:"active"`
	AssumedAt     time.Time  `json:"assumed_at"`
	RenouncedAt   *time.Time `json:"renounced_at,omitempty"`
	RenouncedBy   string     `json:"renounced_by,omitempty"`
}

// RoleChange describes the outcome of a role assignment that changed the
// active holder. A no-op reassignment produces no RoleChange.
type RoleChange struct {
	IncidentID       string   `json:"incident_id"`
	Role             RoleType `json:"role"`
	PreviousAssignee string   `json:"previous_assignee,omitempty"`
	NewAssignee      string   `json:"new_assignee"`
}
