package participants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tuapuikia/dispatch/internal/domain"
)

// IncidentChecker reports whether an incident exists.
type IncidentChecker interface {
	IncidentExists(ctx context.Context, id string) (bool, error)
}

// Service implements role assignment with supersession semantics.
type Service struct {
	repo      Repository
	incidents IncidentChecker
	locks     *keyedMutex
}

// NewService creates a new participants service.
func NewService(repo Repository, incidents IncidentChecker) *Service {
	return &Service{
		repo:      repo,
		incidents: incidents,
		locks:     newKeyedMutex(),
	}
}

// AssignInput holds data for assigning a role on an incident.
type AssignInput struct {
	IncidentID    string
	Role          domain.RoleType
	AssigneeEmail string
	AssignedBy    string
}

// Assign makes the assignee the active holder of a role on an incident.
// A previous holder is superseded, not removed: its history entry stays,
// marked inactive. Re-assigning the current holder is a no-op and returns
// a nil change.
//
// Assignments to the same (incident, role) pair are serialized; each
// caller observes either a vacant role or the fully applied assignment of
// the previous caller, never a half-applied one.
func (s *Service) Assign(ctx context.Context, input AssignInput) (*domain.RoleChange, error) {
	if !input.Role.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, input.Role)
	}
	if input.AssigneeEmail == "" {
		return nil, ErrEmptyAssignee
	}

	key := input.IncidentID + "/" + string(input.Role)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	exists, err := s.incidents.IncidentExists(ctx, input.IncidentID)
	if err != nil {
		return nil, fmt.Errorf("check incident: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, input.IncidentID)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	prev, err := s.repo.GetActiveRoleForUpdateTx(ctx, tx, input.IncidentID, input.Role)
	if err != nil {
		return nil, fmt.Errorf("get active role: %w", err)
	}

	if prev != nil && prev.AssigneeEmail == input.AssigneeEmail {
		slog.Debug("role already held by assignee",
			"incident_id", input.IncidentID,
			"role", input.Role,
			"assignee", input.AssigneeEmail,
		)
		recordRoleAssignment(string(input.Role), "noop")
		return nil, nil
	}

	previousAssignee := ""
	if prev != nil {
		if err := s.repo.SupersedeRoleTx(ctx, tx, prev.ID, input.AssignedBy); err != nil {
			return nil, fmt.Errorf("supersede role: %w", err)
		}
		previousAssignee = prev.AssigneeEmail
	}

	assignment := &domain.ParticipantRole{
		IncidentID:    input.IncidentID,
		Role:          input.Role,
		AssigneeEmail: input.AssigneeEmail,
		Active:        true,
	}
	if err := s.repo.CreateAssignmentTx(ctx, tx, assignment); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	outcome := "assigned"
	if previousAssignee != "" {
		outcome = "superseded"
	}
	recordRoleAssignment(string(input.Role), outcome)

	slog.Info("role assigned",
		"incident_id", input.IncidentID,
		"role", input.Role,
		"assignee", input.AssigneeEmail,
		"previous_assignee", previousAssignee,
		"assigned_by", input.AssignedBy,
	)

	return &domain.RoleChange{
		IncidentID:       input.IncidentID,
		Role:             input.Role,
		PreviousAssignee: previousAssignee,
		NewAssignee:      input.AssigneeEmail,
	}, nil
}

// History returns the full role history for an incident, including
// superseded entries. Unlike Assign, reads skip the existence check: an
// unknown incident simply has no history.
func (s *Service) History(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error) {
	return s.repo.ListByIncident(ctx, incidentID)
}

// ActiveRoles returns the currently active role holders for an incident.
func (s *Service) ActiveRoles(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error) {
	return s.repo.ListActiveByIncident(ctx, incidentID)
}
