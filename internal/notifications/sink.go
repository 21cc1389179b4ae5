// Package notifications delivers incident lifecycle events to people.
// The sink consumes scheduled tasks and fans each one out as rendered
// messages over the configured delivery channels.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/lifecycle"
	"github.com/tuapuikia/dispatch/internal/scheduler"
)

// IncidentDirectory is the read surface the sink needs from the incident
// service.
type IncidentDirectory interface {
	Get(ctx context.Context, id string) (*domain.Incident, error)
	ListActive(ctx context.Context) ([]*domain.Incident, error)
}

// RoleDirectory is the read surface the sink needs from the participants
// service.
type RoleDirectory interface {
	ActiveRoles(ctx context.Context, incidentID string) ([]*domain.ParticipantRole, error)
}

// Sink consumes orchestration tasks and turns them into notifications.
type Sink struct {
	dispatcher *Dispatcher
	incidents  IncidentDirectory
	roles      RoleDirectory
	baseURL    string
}

// NewSink creates a sink over the given dispatcher and read surfaces.
// baseURL, when set, is used to build incident links in messages.
func NewSink(dispatcher *Dispatcher, incidents IncidentDirectory, roles RoleDirectory, baseURL string) *Sink {
	return &Sink{
		dispatcher: dispatcher,
		incidents:  incidents,
		roles:      roles,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Register binds the sink's handlers to the task kinds it consumes.
// Must be called before the scheduler starts.
func (s *Sink) Register(sched *scheduler.Scheduler) {
	sched.Register(lifecycle.TaskKindIncidentCreated, scheduler.HandlerFunc(s.handleIncidentCreated))
	sched.Register(lifecycle.TaskKindFieldChanged, scheduler.HandlerFunc(s.handleFieldChanged))
	sched.Register(lifecycle.TaskKindRoleChanged, scheduler.HandlerFunc(s.handleRoleChanged))
	sched.Register(lifecycle.TaskKindDailySummary, scheduler.HandlerFunc(s.handleDailySummary))
}

func (s *Sink) handleIncidentCreated(ctx context.Context, task *scheduler.Task) error {
	var payload lifecycle.IncidentCreatedPayload
	if err := task.DecodePayload(&payload); err != nil {
		return err
	}

	// The payload carries the full announcement, no lookup needed.
	s.dispatcher.Dispatch(ctx, MessageData{
		Kind: MessageKindCreated,
		Incident: IncidentInfo{
			ID:          payload.IncidentID,
			Title:       payload.Title,
			Description: payload.Description,
			Status:      string(payload.Status),
			CreatedBy:   payload.CreatedBy,
		},
		IncidentURL: s.incidentURL(payload.IncidentID),
		GeneratedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Sink) handleFieldChanged(ctx context.Context, task *scheduler.Task) error {
	var payload lifecycle.FieldChangedPayload
	if err := task.DecodePayload(&payload); err != nil {
		return err
	}

	incident, err := s.incidents.Get(ctx, payload.IncidentID)
	if err != nil {
		return fmt.Errorf("load incident %s: %w", payload.IncidentID, err)
	}

	s.dispatcher.Dispatch(ctx, MessageData{
		Kind:     MessageKindFieldChanged,
		Incident: incidentInfo(incident),
		Change: &ChangeInfo{
			Field:     payload.Field,
			Previous:  payload.Previous,
			New:       payload.New,
			UpdatedBy: payload.UpdatedBy,
		},
		IncidentURL: s.incidentURL(payload.IncidentID),
		GeneratedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Sink) handleRoleChanged(ctx context.Context, task *scheduler.Task) error {
	var payload lifecycle.RoleChangedPayload
	if err := task.DecodePayload(&payload); err != nil {
		return err
	}

	incident, err := s.incidents.Get(ctx, payload.IncidentID)
	if err != nil {
		return fmt.Errorf("load incident %s: %w", payload.IncidentID, err)
	}

	s.dispatcher.Dispatch(ctx, MessageData{
		Kind:     MessageKindRoleChanged,
		Incident: incidentInfo(incident),
		Handover: &HandoverInfo{
			Role:             string(payload.Role),
			PreviousAssignee: payload.PreviousAssignee,
			NewAssignee:      payload.NewAssignee,
		},
		IncidentURL: s.incidentURL(payload.IncidentID),
		GeneratedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Sink) handleDailySummary(ctx context.Context, task *scheduler.Task) error {
	var payload lifecycle.DailySummaryPayload
	if err := task.DecodePayload(&payload); err != nil {
		return err
	}

	open, err := s.incidents.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list open incidents: %w", err)
	}
	if len(open) == 0 {
		slog.Debug("no open incidents, skipping daily summary", "date", payload.Date)
		return nil
	}

	now := time.Now().UTC()
	summary := &SummaryInfo{
		Date:      payload.Date,
		Incidents: make([]SummaryIncident, 0, len(open)),
	}
	for _, inc := range open {
		entry := SummaryIncident{
			ID:      inc.ID,
			Title:   inc.Title,
			Status:  string(inc.Status),
			OpenFor: now.Sub(inc.CreatedAt),
		}
		commander, err := s.commanderFor(ctx, inc.ID)
		if err != nil {
			// A summary without the commander line is still worth sending.
			slog.Warn("failed to resolve commander for summary",
				"incident_id", inc.ID,
				"error", err,
			)
		} else {
			entry.Commander = commander
		}
		summary.Incidents = append(summary.Incidents, entry)
	}

	s.dispatcher.Dispatch(ctx, MessageData{
		Kind:        MessageKindDailySummary,
		Summary:     summary,
		GeneratedAt: now,
	})
	return nil
}

// commanderFor returns the active incident commander, or "" when the role
// is unfilled.
func (s *Sink) commanderFor(ctx context.Context, incidentID string) (string, error) {
	roles, err := s.roles.ActiveRoles(ctx, incidentID)
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if r.Role == domain.RoleTypeCommander {
			return r.AssigneeEmail, nil
		}
	}
	return "", nil
}

func (s *Sink) incidentURL(id string) string {
	if s.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/incidents/%s", s.baseURL, id)
}

func incidentInfo(inc *domain.Incident) IncidentInfo {
	return IncidentInfo{
		ID:          inc.ID,
		Title:       inc.Title,
		Description: inc.Description,
		Status:      string(inc.Status),
		CreatedBy:   inc.CreatedBy,
	}
}
