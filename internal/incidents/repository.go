package incidents

import (
	"context"

	"github.com/tuapuikia/dispatch/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error)
	CountIncidents(ctx context.Context, filters IncidentFilters) (int, error)
	UpdateIncident(ctx context.Context, incident *domain.Incident) error
	DeleteIncident(ctx context.Context, id string) error

	IncidentExists(ctx context.Context, id string) (bool, error)
	ListActiveIncidents(ctx context.Context) ([]*domain.Incident, error)
}

// IncidentFilters holds filter options for listing incidents.
type IncidentFilters struct {
	Status *domain.IncidentStatus
	Limit  int
	Offset int
}
