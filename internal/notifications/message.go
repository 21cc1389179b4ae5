package notifications

import "time"

// Channel identifies a delivery channel with its own template set.
type Channel string

// Delivery channels.
const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

// MessageKind selects the template used to render a message.
type MessageKind string

// Message kinds, one per orchestration task kind.
const (
	MessageKindCreated      MessageKind = "created"
	MessageKindFieldChanged MessageKind = "field_changed"
	MessageKindRoleChanged  MessageKind = "role_changed"
	MessageKindDailySummary MessageKind = "daily_summary"
)

// Message is a rendered notification ready to send.
type Message struct {
	Subject string
	Body    string
}

// MessageData contains data for rendering a notification.
type MessageData struct {
	Kind        MessageKind   `json:"kind"`
	Incident    IncidentInfo  `json:"incident"`
	Change      *ChangeInfo   `json:"change,omitempty"`
	Handover    *HandoverInfo `json:"handover,omitempty"`
	Summary     *SummaryInfo  `json:"summary,omitempty"`
	IncidentURL string        `json:"incident_url,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// IncidentInfo contains incident context for a notification.
type IncidentInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by"`
}

// ChangeInfo describes a single tracked-field change.
type ChangeInfo struct {
	Field     string `json:"field"`
	Previous  string `json:"previous,omitempty"`
	New       string `json:"new"`
	UpdatedBy string `json:"updated_by"`
}

// HandoverInfo describes a role handover.
type HandoverInfo struct {
	Role             string `json:"role"`
	PreviousAssignee string `json:"previous_assignee,omitempty"`
	NewAssignee      string `json:"new_assignee"`
}

// SummaryInfo contains the daily digest of open incidents.
type SummaryInfo struct {
	Date      string            `json:"date"`
	Incidents []SummaryIncident `json:"incidents"`
}

// SummaryIncident is one line of the daily digest.
type SummaryIncident struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`
	Commander string        `json:"commander,omitempty"`
	OpenFor   time.Duration `json:"open_for"`
}
