// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/incidents"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident creates a new incident in the database.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (title, description, status, created_by, closed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.CreatedBy,
		incident.ClosedAt,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, title, description, status, created_by, created_at, updated_at, closed_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&incident.Status,
		&incident.CreatedBy,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ClosedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &incident, nil
}

// ListIncidents retrieves incidents with optional filters.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]*domain.Incident, error) {
	query := `
		SELECT id, title, description, status, created_by, created_at, updated_at, closed_at
		FROM incidents
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filters.Status)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// CountIncidents returns the total count of incidents matching the filters.
func (r *Repository) CountIncidents(ctx context.Context, filters incidents.IncidentFilters) (int, error) {
	query := `SELECT COUNT(*) FROM incidents WHERE 1=1`
	args := []interface{}{}

	if filters.Status != nil {
		query += " AND status = $1"
		args = append(args, *filters.Status)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return count, nil
}

// UpdateIncident updates an existing incident.
func (r *Repository) UpdateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, closed_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.ClosedAt,
	).Scan(&incident.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// DeleteIncident deletes an incident by ID. Role history rows are removed
// by the foreign key cascade.
func (r *Repository) DeleteIncident(ctx context.Context, id string) error {
	query := `DELETE FROM incidents WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// IncidentExists reports whether an incident with the given ID exists.
func (r *Repository) IncidentExists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check incident exists: %w", err)
	}
	return exists, nil
}

// ListActiveIncidents retrieves all incidents that are not closed, oldest
// first.
func (r *Repository) ListActiveIncidents(ctx context.Context) ([]*domain.Incident, error) {
	query := `
		SELECT id, title, description, status, created_by, created_at, updated_at, closed_at
		FROM incidents
		WHERE status != 'closed'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

func scanIncidents(rows pgx.Rows) ([]*domain.Incident, error) {
	incidentsList := make([]*domain.Incident, 0)
	for rows.Next() {
		var incident domain.Incident
		if err := rows.Scan(
			&incident.ID,
			&incident.Title,
			&incident.Description,
			&incident.Status,
			&incident.CreatedBy,
			&incident.CreatedAt,
			&incident.UpdatedAt,
			&incident.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidentsList = append(incidentsList, &incident)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidentsList, nil
}
