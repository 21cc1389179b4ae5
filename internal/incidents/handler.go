package incidents

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/participants"
	"github.com/tuapuikia/dispatch/internal/pkg/ctxlog"
	"github.com/tuapuikia/dispatch/internal/pkg/httputil"
)

// RoleReader reads role state for incidents (used by the incidents handler).
type RoleReader interface {
	ActiveRoles(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error)
	History(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error)
}

// Pagination constants.
const (
	DefaultIncidentsLimit = 20
	MaxIncidentsLimit     = 100
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	roles     RoleReader
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service, roles RoleReader) *Handler {
	return &Handler{
		service:   service,
		roles:     roles,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the incidents module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Put("/{id}", h.UpdateIncident)

		r.Route("/{id}/roles", func(r chi.Router) {
			r.Get("/", h.ListRoles)
			r.Post("/", h.AssignRole)
			r.Get("/history", h.RoleHistory)
		})
	})
}

// RegisterAdminRoutes registers routes that require admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Delete("/incidents/{id}", h.DeleteIncident)
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title          string `json:"title" validate:"required,min=1,max=255"`
	Description    string `json:"description" validate:"max=4000"`
	Status         string `json:"status" validate:"omitempty,oneof=active stable closed"`
	CommanderEmail string `json:"commander_email" validate:"omitempty,email"`
	ReporterEmail  string `json:"reporter_email" validate:"omitempty,email"`
}

// ToInput converts the request to a service input.
func (r *CreateIncidentRequest) ToInput() CreateIncidentInput {
	return CreateIncidentInput{
		Title:          r.Title,
		Description:    r.Description,
		Status:         domain.IncidentStatus(r.Status),
		CommanderEmail: r.CommanderEmail,
		ReporterEmail:  r.ReporterEmail,
	}
}

// UpdateIncidentRequest represents the request body for updating an incident.
// Omitted fields keep their current value.
type UpdateIncidentRequest struct {
	Title          *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description    *string `json:"description" validate:"omitempty,max=4000"`
	Status         *string `json:"status" validate:"omitempty,oneof=active stable closed"`
	CommanderEmail string  `json:"commander_email" validate:"omitempty,email"`
	ReporterEmail  string  `json:"reporter_email" validate:"omitempty,email"`
}

// ToInput converts the request to a service input.
func (r *UpdateIncidentRequest) ToInput() UpdateIncidentInput {
	input := UpdateIncidentInput{
		Title:          r.Title,
		Description:    r.Description,
		CommanderEmail: r.CommanderEmail,
		ReporterEmail:  r.ReporterEmail,
	}
	if r.Status != nil {
		status := domain.IncidentStatus(*r.Status)
		input.Status = &status
	}
	return input
}

// AssignRoleRequest represents the request body for a role handover.
type AssignRoleRequest struct {
	Role          string `json:"role" validate:"required"`
	AssigneeEmail string `json:"assignee_email" validate:"required,email"`
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	createdBy := httputil.GetUserEmail(r.Context())
	incident, err := h.service.Create(r.Context(), req.ToInput(), createdBy)
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := ctxlog.With(r.Context(), "incident_id", id)

	incident, err := h.service.Get(ctx, id)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filters := IncidentFilters{}

	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.IncidentStatus(status)
		if !s.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status filter, must be 'active', 'stable', 'closed', or empty")
			return
		}
		filters.Status = &s
	}

	// Parse pagination parameters with validation
	limit := DefaultIncidentsLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > MaxIncidentsLimit {
			parsed = MaxIncidentsLimit
		}
		limit = parsed
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			httputil.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	filters.Limit = limit
	filters.Offset = offset

	incidents, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.handleError(r.Context(), w, err)
		return
	}

	response := map[string]interface{}{
		"incidents": incidents,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	}

	httputil.Success(w, http.StatusOK, response)
}

// UpdateIncident handles PUT /incidents/{id} request.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := ctxlog.With(r.Context(), "incident_id", id)

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	updatedBy := httputil.GetUserEmail(ctx)
	incident, err := h.service.Update(ctx, id, req.ToInput(), updatedBy)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id} request.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := ctxlog.With(r.Context(), "incident_id", id)

	if err := h.service.Delete(ctx, id); err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.NoContent(w)
}

// AssignRole handles POST /incidents/{id}/roles request.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := ctxlog.With(r.Context(), "incident_id", id)

	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	assignedBy := httputil.GetUserEmail(ctx)
	change, err := h.service.AssignRole(ctx, id, domain.RoleType(req.Role), req.AssigneeEmail, assignedBy)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	response := map[string]interface{}{
		"incident_id":    id,
		"role":           req.Role,
		"assignee_email": req.AssigneeEmail,
		"changed":        change != nil,
	}
	if change != nil && change.PreviousAssignee != "" {
		response["previous_assignee"] = change.PreviousAssignee
	}

	httputil.Success(w, http.StatusOK, response)
}

// ListRoles handles GET /incidents/{id}/roles request.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := ctxlog.With(r.Context(), "incident_id", id)

	roles, err := h.roles.ActiveRoles(ctx, id)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// RoleHistory handles GET /incidents/{id}/roles/history request.
func (h *Handler) RoleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := ctxlog.With(r.Context(), "incident_id", id)

	history, err := h.roles.History(ctx, id)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	httputil.HandleError(ctx, w, err, []httputil.ErrorMapping{
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
		{Error: participants.ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: participants.ErrInvalidRole, Status: http.StatusBadRequest},
		{Error: participants.ErrEmptyAssignee, Status: http.StatusBadRequest},
		{Error: participants.ErrAssignmentConflict, Status: http.StatusConflict},
	})
}
