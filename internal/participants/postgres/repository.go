// Package postgres provides PostgreSQL implementation of the participants repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/participants"
)

// PostgreSQL error codes surfaced as domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Repository implements participants.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListByIncident returns the full role history for an incident.
func (r *Repository) ListByIncident(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error) {
	query := `
		SELECT id, incident_id, role, assignee_email, active,
		       assumed_at, renounced_at, renounced_by
		FROM participant_roles
		WHERE incident_id = $1
		ORDER BY assumed_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// ListActiveByIncident returns only the active role holders for an incident.
func (r *Repository) ListActiveByIncident(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error) {
	query := `
		SELECT id, incident_id, role, assignee_email, active,
		       assumed_at, renounced_at, renounced_by
		FROM participant_roles
		WHERE incident_id = $1 AND active
		ORDER BY role
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list active roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// BeginTx starts a new database transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetActiveRoleForUpdateTx returns the active holder of a role, row-locked
// for the duration of the transaction. Returns nil when the role is vacant.
func (r *Repository) GetActiveRoleForUpdateTx(ctx context.Context, tx pgx.Tx, incidentID string, role domain.RoleType) (*domain.ParticipantRole, error) {
	query := `
		SELECT id, incident_id, role, assignee_email, active,
		       assumed_at, renounced_at, renounced_by
		FROM participant_roles
		WHERE incident_id = $1 AND role = $2 AND active
		FOR UPDATE
	`
	var pr domain.ParticipantRole
	var renouncedBy *string
	err := tx.QueryRow(ctx, query, incidentID, role).Scan(
		&pr.ID,
		&pr.IncidentID,
		&pr.Role,
		&pr.AssigneeEmail,
		&pr.Active,
		&pr.AssumedAt,
		&pr.RenouncedAt,
		&renouncedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active role: %w", err)
	}
	if renouncedBy != nil {
		pr.RenouncedBy = *renouncedBy
	}
	return &pr, nil
}

// SupersedeRoleTx marks a role history entry inactive.
func (r *Repository) SupersedeRoleTx(ctx context.Context, tx pgx.Tx, roleID, renouncedBy string) error {
	query := `
		UPDATE participant_roles
		SET active = false, renounced_at = now(), renounced_by = $2
		WHERE id = $1 AND active
	`
	tag, err := tx.Exec(ctx, query, roleID, renouncedBy)
	if err != nil {
		return fmt.Errorf("supersede role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return participants.ErrAssignmentConflict
	}
	return nil
}

// CreateAssignmentTx inserts a new active role history entry. A unique
// violation on the single-active-holder index or a missing incident is
// reported as a domain error.
func (r *Repository) CreateAssignmentTx(ctx context.Context, tx pgx.Tx, assignment *domain.ParticipantRole) error {
	query := `
		INSERT INTO participant_roles (incident_id, role, assignee_email, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, assumed_at
	`
	err := tx.QueryRow(ctx, query,
		assignment.IncidentID,
		assignment.Role,
		assignment.AssigneeEmail,
		assignment.Active,
	).Scan(&assignment.ID, &assignment.AssumedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case codeUniqueViolation:
				return participants.ErrAssignmentConflict
			case codeForeignKeyViolation:
				return participants.ErrIncidentNotFound
			}
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func scanRoles(rows pgx.Rows) ([]*domain.ParticipantRole, error) {
	roles := make([]*domain.ParticipantRole, 0)
	for rows.Next() {
		var pr domain.ParticipantRole
		var renouncedBy *string
		if err := rows.Scan(
			&pr.ID,
			&pr.IncidentID,
			&pr.Role,
			&pr.AssigneeEmail,
			&pr.Active,
			&pr.AssumedAt,
			&pr.RenouncedAt,
			&renouncedBy,
		); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if renouncedBy != nil {
			pr.RenouncedBy = *renouncedBy
		}
		roles = append(roles, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}
