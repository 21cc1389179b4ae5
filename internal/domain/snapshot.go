package domain

import "time"

// Snapshot is an immutable point-in-time copy of an incident's tracked
// fields. The mutation path captures one before applying changes; the
// lifecycle core diffs two of them and never reads the live Incident.
type Snapshot struct {
	IncidentID  string         `json:"incident_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      IncidentStatus `json:"status"`
	CapturedAt  time.Time      `json:"captured_at"`
}

// SnapshotOf captures the tracked fields of an incident.
func SnapshotOf(inc *Incident) *Snapshot {
	return &Snapshot{
		IncidentID:  inc.ID,
		Title:       inc.Title,
		Description: inc.Description,
		Status:      inc.Status,
		CapturedAt:  time.Now().UTC(),
	}
}

// ChangeEvent records a single tracked-field change between two snapshots
// of the same incident.
type ChangeEvent struct {
	IncidentID string `json:"incident_id"`
	Field      string `json:"field"`
	Previous   string `json:"previous"`
	New        string `json:"new"`
}
