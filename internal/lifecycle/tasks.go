package lifecycle

import (
	"time"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/scheduler"
)

// Task kinds produced by orchestration runs.
const (
	TaskKindIncidentCreated = "incident.created"
	TaskKindFieldChanged    = "incident.field_changed"
	TaskKindRoleChanged     = "incident.role_changed"
	TaskKindDailySummary    = "incident.daily_summary"
)

// IncidentCreatedPayload announces a new incident.
type IncidentCreatedPayload struct {
	IncidentID  string                `json:"incident_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      domain.IncidentStatus `json:"status"`
	CreatedBy   string                `json:"created_by"`
}

// FieldChangedPayload announces a single tracked-field change.
type FieldChangedPayload struct {
	IncidentID string `json:"incident_id"`
	Field      string `json:"field"`
	Previous   string `json:"previous"`
	New        string `json:"new"`
	UpdatedBy  string `json:"updated_by"`
}

// RoleChangedPayload announces a role handover.
type RoleChangedPayload struct {
	IncidentID       string          `json:"incident_id"`
	Role             domain.RoleType `json:"role"`
	PreviousAssignee string          `json:"previous_assignee,omitempty"`
	NewAssignee      string          `json:"new_assignee"`
}

// DailySummaryPayload triggers the daily active-incident digest.
type DailySummaryPayload struct {
	Date string `json:"date"`
}

// NewIncidentCreatedTask builds the creation announcement task.
func NewIncidentCreatedTask(inc *domain.Incident) (*scheduler.Task, error) {
	return scheduler.NewTask(TaskKindIncidentCreated, IncidentCreatedPayload{
		IncidentID:  inc.ID,
		Title:       inc.Title,
		Description: inc.Description,
		Status:      inc.Status,
		CreatedBy:   inc.CreatedBy,
	})
}

// NewFieldChangedTask builds a task for one diff entry.
func NewFieldChangedTask(change domain.ChangeEvent, updatedBy string) (*scheduler.Task, error) {
	return scheduler.NewTask(TaskKindFieldChanged, FieldChangedPayload{
		IncidentID: change.IncidentID,
		Field:      change.Field,
		Previous:   change.Previous,
		New:        change.New,
		UpdatedBy:  updatedBy,
	})
}

// NewRoleChangedTask builds a task for a role handover.
func NewRoleChangedTask(change *domain.RoleChange) (*scheduler.Task, error) {
	return scheduler.NewTask(TaskKindRoleChanged, RoleChangedPayload{
		IncidentID:       change.IncidentID,
		Role:             change.Role,
		PreviousAssignee: change.PreviousAssignee,
		NewAssignee:      change.NewAssignee,
	})
}

// NewDailySummaryTask builds the daily digest trigger for the given day.
func NewDailySummaryTask(day time.Time) (*scheduler.Task, error) {
	return scheduler.NewTask(TaskKindDailySummary, DailySummaryPayload{
		Date: day.Format("2006-01-02"),
	})
}
