package participants

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tuapuikia/dispatch/internal/domain"
)

// Repository defines the interface for role assignment storage.
type Repository interface {
	// ListByIncident returns the full role history for an incident,
	// newest assignments first.
	ListByIncident(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error)
	// ListActiveByIncident returns only the currently active holders.
	ListActiveByIncident(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error)

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	// GetActiveRoleForUpdateTx returns the active holder of a role, locked
	// for the duration of the transaction, or nil when the role is vacant.
	GetActiveRoleForUpdateTx(ctx context.Context, tx pgx.Tx, incidentID string, role domain.RoleType) (*domain.ParticipantRole, error)
	SupersedeRoleTx(ctx context.Context, tx pgx.Tx, roleID, renouncedBy string) error
	CreateAssignmentTx(ctx context.Context, tx pgx.Tx, assignment *domain.ParticipantRole) error
}
