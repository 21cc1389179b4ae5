// Package incidents provides the incident mutation layer: every create and
// update captures snapshots and hands them to a lifecycle run, so the
// orchestration core never reads live incident state.
package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/lifecycle"
)

// Orchestrator runs the lifecycle flows triggered by incident mutations.
type Orchestrator interface {
	RunCreate(ctx context.Context, input lifecycle.CreateRunInput) (*lifecycle.RunResult, error)
	RunUpdate(ctx context.Context, input lifecycle.UpdateRunInput) (*lifecycle.RunResult, error)
	RunAssign(ctx context.Context, input lifecycle.AssignRunInput) (*lifecycle.RunResult, error)
}

// Service implements incident business logic.
type Service struct {
	repo         Repository
	orchestrator Orchestrator
}

// NewService creates a new incident service.
func NewService(repo Repository, orchestrator Orchestrator) *Service {
	return &Service{
		repo:         repo,
		orchestrator: orchestrator,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title          string
	Description    string
	Status         domain.IncidentStatus
	CommanderEmail string
	ReporterEmail  string
}

// UpdateIncidentInput holds a partial incident update. Nil fields keep
// their current value.
type UpdateIncidentInput struct {
	Title          *string
	Description    *string
	Status         *domain.IncidentStatus
	CommanderEmail string
	ReporterEmail  string
}

// Create stores a new incident and runs the creation flow that announces
// it and seats the initial commander and reporter. The incident is durable
// before the run starts; a failed run leaves it without announcements, not
// half-created.
func (s *Service) Create(ctx context.Context, input CreateIncidentInput, createdBy string) (*domain.Incident, error) {
	status := input.Status
	if status == "" {
		status = domain.IncidentStatusActive
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	incident := &domain.Incident{
		Title:       input.Title,
		Description: input.Description,
		Status:      status,
		CreatedBy:   createdBy,
	}
	if status.IsClosed() {
		now := time.Now().UTC()
		incident.ClosedAt = &now
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if _, err := s.orchestrator.RunCreate(ctx, lifecycle.CreateRunInput{
		Incident:       incident,
		CommanderEmail: input.CommanderEmail,
		ReporterEmail:  input.ReporterEmail,
	}); err != nil {
		slog.Error("creation run failed", "incident_id", incident.ID, "error", err)
	}

	return incident, nil
}

// Update applies a partial update and runs the update flow over the before
// and after snapshots. The pre-mutation snapshot is captured before any
// field is touched; the diff the run schedules tasks from depends on it.
func (s *Service) Update(ctx context.Context, id string, input UpdateIncidentInput, updatedBy string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := domain.SnapshotOf(incident)

	if input.Title != nil {
		incident.Title = *input.Title
	}
	if input.Description != nil {
		incident.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *input.Status)
		}
		applyStatus(incident, *input.Status)
	}

	if err := s.repo.UpdateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if _, err := s.orchestrator.RunUpdate(ctx, lifecycle.UpdateRunInput{
		Previous:       previous,
		Current:        domain.SnapshotOf(incident),
		UpdatedBy:      updatedBy,
		CommanderEmail: input.CommanderEmail,
		ReporterEmail:  input.ReporterEmail,
	}); err != nil {
		slog.Error("update run failed", "incident_id", incident.ID, "error", err)
	}

	return incident, nil
}

// AssignRole hands a role over to the given assignee through the assignment
// flow. Unlike the create and update runs, assignment errors reach the
// caller: the handover is the whole request, so there is nothing durable to
// fall back on. A nil change means the assignee already held the role.
func (s *Service) AssignRole(ctx context.Context, incidentID string, role domain.RoleType, assigneeEmail, assignedBy string) (*domain.RoleChange, error) {
	result, err := s.orchestrator.RunAssign(ctx, lifecycle.AssignRunInput{
		IncidentID: incidentID,
		Role:       role,
		Assignee:   assigneeEmail,
		AssignedBy: assignedBy,
	})
	if err != nil {
		return nil, err
	}
	if len(result.RoleChanges) == 0 {
		return nil, nil
	}
	return result.RoleChanges[0], nil
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// List retrieves incidents with filters and returns the total count for
// pagination.
func (s *Service) List(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, int, error) {
	incidents, err := s.repo.ListIncidents(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}

	total, err := s.repo.CountIncidents(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	return incidents, total, nil
}

// Delete removes an incident and its role history.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteIncident(ctx, id)
}

// IncidentExists reports whether an incident exists. It satisfies the
// participants package's incident checker.
func (s *Service) IncidentExists(ctx context.Context, id string) (bool, error) {
	return s.repo.IncidentExists(ctx, id)
}

// ListActive returns all incidents not yet closed, for the daily summary.
func (s *Service) ListActive(ctx context.Context) ([]*domain.Incident, error) {
	return s.repo.ListActiveIncidents(ctx)
}

func applyStatus(incident *domain.Incident, status domain.IncidentStatus) {
	incident.Status = status
	if status.IsClosed() {
		if incident.ClosedAt == nil {
			now := time.Now().UTC()
			incident.ClosedAt = &now
		}
		return
	}
	incident.ClosedAt = nil
}
