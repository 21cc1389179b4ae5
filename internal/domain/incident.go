package domain

import "time"

// IncidentStatus represents the lifecycle status of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusActive IncidentStatus = "active"
	IncidentStatusStable IncidentStatus = "stable"
	IncidentStatusClosed IncidentStatus = "closed"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	return s == IncidentStatusActive || s == IncidentStatusStable || s == IncidentStatusClosed
}

// IsClosed checks if the status represents a closed incident.
func (s IncidentStatus) IsClosed() bool {
	return s == IncidentStatusClosed
}

// Incident represents a tracked incident.
type Incident struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      IncidentStatus `json:"status"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}
