// Package lifecycle drives incident orchestration runs: diffing snapshots,
// resolving functional roles and scheduling the follow-up tasks derived
// from both.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tuapuikia/dispatch/internal/domain"
	"github.com/tuapuikia/dispatch/internal/participants"
	"github.com/tuapuikia/dispatch/internal/scheduler"
)

// RunState represents the stage an orchestration run has reached.
type RunState string

// Run states, in progression order. A run moves through them strictly
// forward and ends in done or failed.
const (
	RunStateStarted       RunState = "started"
	RunStateDiffed        RunState = "diffed"
	RunStateRolesResolved RunState = "roles_resolved"
	RunStateScheduled     RunState = "scheduled"
	RunStateDone          RunState = "done"
	RunStateFailed        RunState = "failed"
)

// RoleAssigner assigns functional roles on incidents.
type RoleAssigner interface {
	Assign(ctx context.Context, input participants.AssignInput) (*domain.RoleChange, error)
}

// TaskSubmitter enqueues tasks for asynchronous processing.
type TaskSubmitter interface {
	Submit(ctx context.Context, task *scheduler.Task) error
}

// Orchestrator coordinates the create and update flows.
type Orchestrator struct {
	roles     RoleAssigner
	scheduler TaskSubmitter
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(roles RoleAssigner, scheduler TaskSubmitter) *Orchestrator {
	return &Orchestrator{
		roles:     roles,
		scheduler: scheduler,
	}
}

// CreateRunInput holds data for the incident creation flow.
type CreateRunInput struct {
	Incident *domain.Incident
	// CommanderEmail defaults to the reporter when empty.
	CommanderEmail string
	// ReporterEmail defaults to the incident creator when empty.
	ReporterEmail string
}

// UpdateRunInput holds data for the incident update flow. Previous must be
// the snapshot captured before the mutation was applied and Current the one
// captured after.
type UpdateRunInput struct {
	Previous  *domain.Snapshot
	Current   *domain.Snapshot
	UpdatedBy string
	// Optional role handovers applied during the run, commander first.
	CommanderEmail string
	ReporterEmail  string
}

// AssignRunInput holds data for the explicit role handover flow.
type AssignRunInput struct {
	IncidentID string
	Role       domain.RoleType
	Assignee   string
	AssignedBy string
}

// RunResult describes a completed orchestration run.
type RunResult struct {
	RunID       string
	State       RunState
	Changes     []domain.ChangeEvent
	RoleChanges []*domain.RoleChange
	Submitted   int
	Rejected    int
}

// RunCreate executes the creation flow: announce the incident, resolve the
// initial commander and reporter, then schedule the derived tasks. On
// failure no task of the run reaches the scheduler.
func (o *Orchestrator) RunCreate(ctx context.Context, input CreateRunInput) (*RunResult, error) {
	if input.Incident == nil {
		return nil, ErrMissingIncident
	}

	r := newRun("create", input.Incident.ID)

	reporter := input.ReporterEmail
	if reporter == "" {
		reporter = input.Incident.CreatedBy
	}
	commander := input.CommanderEmail
	if commander == "" {
		commander = reporter
	}

	// A new incident has no previous snapshot to diff against; the only
	// change-derived task is the creation announcement.
	tasks := make([]*scheduler.Task, 0, 3)
	created, err := NewIncidentCreatedTask(input.Incident)
	if err != nil {
		return r.fail(err)
	}
	tasks = append(tasks, created)
	r.advance(RunStateDiffed)

	roleChanges, roleTasks, err := o.resolveRoles(ctx, input.Incident.ID, commander, reporter, input.Incident.CreatedBy)
	if err != nil {
		return r.fail(err)
	}
	tasks = append(tasks, roleTasks...)
	r.result.RoleChanges = roleChanges
	r.advance(RunStateRolesResolved)

	r.result.Submitted, r.result.Rejected = o.scheduleTasks(ctx, r.result.RunID, tasks)
	r.advance(RunStateScheduled)

	return r.done()
}

// RunUpdate executes the update flow: diff the two snapshots, apply any
// requested role handovers, then schedule one task per field change followed
// by one per role change. Task order follows diff order.
func (o *Orchestrator) RunUpdate(ctx context.Context, input UpdateRunInput) (*RunResult, error) {
	if input.Previous == nil || input.Current == nil {
		return nil, ErrMissingSnapshot
	}

	r := newRun("update", input.Current.IncidentID)

	changes := Diff(input.Previous, input.Current)
	tasks := make([]*scheduler.Task, 0, len(changes)+2)
	for _, change := range changes {
		task, err := NewFieldChangedTask(change, input.UpdatedBy)
		if err != nil {
			return r.fail(err)
		}
		tasks = append(tasks, task)
	}
	r.result.Changes = changes
	r.advance(RunStateDiffed)

	roleChanges, roleTasks, err := o.resolveRoles(ctx, input.Current.IncidentID, input.CommanderEmail, input.ReporterEmail, input.UpdatedBy)
	if err != nil {
		return r.fail(err)
	}
	tasks = append(tasks, roleTasks...)
	r.result.RoleChanges = roleChanges
	r.advance(RunStateRolesResolved)

	r.result.Submitted, r.result.Rejected = o.scheduleTasks(ctx, r.result.RunID, tasks)
	r.advance(RunStateScheduled)

	return r.done()
}

// RunAssign executes the explicit role handover flow: a single assignment
// followed by its announcement task. There are no snapshots to diff, so the
// run moves straight to role resolution. A no-op handover completes the run
// with nothing scheduled.
func (o *Orchestrator) RunAssign(ctx context.Context, input AssignRunInput) (*RunResult, error) {
	r := newRun("assign", input.IncidentID)

	change, err := o.roles.Assign(ctx, participants.AssignInput{
		IncidentID:    input.IncidentID,
		Role:          input.Role,
		AssigneeEmail: input.Assignee,
		AssignedBy:    input.AssignedBy,
	})
	if err != nil {
		return r.fail(fmt.Errorf("assign %s: %w", input.Role, err))
	}

	var tasks []*scheduler.Task
	if change != nil {
		task, err := NewRoleChangedTask(change)
		if err != nil {
			return r.fail(err)
		}
		tasks = append(tasks, task)
		r.result.RoleChanges = []*domain.RoleChange{change}
	}
	r.advance(RunStateRolesResolved)

	r.result.Submitted, r.result.Rejected = o.scheduleTasks(ctx, r.result.RunID, tasks)
	r.advance(RunStateScheduled)

	return r.done()
}

// resolveRoles applies the requested role assignments, commander strictly
// before reporter. Empty emails are skipped; no-op assignments produce no
// task.
func (o *Orchestrator) resolveRoles(ctx context.Context, incidentID, commander, reporter, assignedBy string) ([]*domain.RoleChange, []*scheduler.Task, error) {
	assignments := []struct {
		role  domain.RoleType
		email string
	}{
		{domain.RoleTypeCommander, commander},
		{domain.RoleTypeReporter, reporter},
	}

	var roleChanges []*domain.RoleChange
	var tasks []*scheduler.Task
	for _, a := range assignments {
		if a.email == "" {
			continue
		}

		change, err := o.roles.Assign(ctx, participants.AssignInput{
			IncidentID:    incidentID,
			Role:          a.role,
			AssigneeEmail: a.email,
			AssignedBy:    assignedBy,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("assign %s: %w", a.role, err)
		}
		if change == nil {
			continue
		}

		task, err := NewRoleChangedTask(change)
		if err != nil {
			return nil, nil, err
		}
		roleChanges = append(roleChanges, change)
		tasks = append(tasks, task)
	}

	return roleChanges, tasks, nil
}

// scheduleTasks submits tasks in order. The mutation behind the run is
// already committed, so scheduling is best-effort: a rejected task is logged
// and counted, never fatal to the run, and the remaining tasks are still
// attempted.
func (o *Orchestrator) scheduleTasks(ctx context.Context, runID string, tasks []*scheduler.Task) (submitted, rejected int) {
	for _, task := range tasks {
		if err := o.scheduler.Submit(ctx, task); err != nil {
			slog.Warn("task rejected by scheduler, side effect dropped",
				"run_id", runID,
				"kind", task.Kind,
				"error", err,
			)
			rejected++
			continue
		}
		submitted++
	}
	return submitted, rejected
}

// run tracks one orchestration invocation.
type run struct {
	flow       string
	incidentID string
	start      time.Time
	result     *RunResult
}

func newRun(flow, incidentID string) *run {
	r := &run{
		flow:       flow,
		incidentID: incidentID,
		start:      time.Now(),
		result: &RunResult{
			RunID: uuid.NewString(),
			State: RunStateStarted,
		},
	}
	slog.Info("orchestration run started",
		"run_id", r.result.RunID,
		"flow", flow,
		"incident_id", incidentID,
	)
	return r
}

func (r *run) advance(next RunState) {
	r.result.State = next
	slog.Debug("orchestration run advanced",
		"run_id", r.result.RunID,
		"state", next,
	)
}

func (r *run) done() (*RunResult, error) {
	r.result.State = RunStateDone
	recordRun(r.flow, string(RunStateDone), time.Since(r.start))
	slog.Info("orchestration run done",
		"run_id", r.result.RunID,
		"flow", r.flow,
		"incident_id", r.incidentID,
		"changes", len(r.result.Changes),
		"role_changes", len(r.result.RoleChanges),
		"tasks_submitted", r.result.Submitted,
		"tasks_rejected", r.result.Rejected,
	)
	return r.result, nil
}

func (r *run) fail(err error) (*RunResult, error) {
	r.result.State = RunStateFailed
	recordRun(r.flow, string(RunStateFailed), time.Since(r.start))
	slog.Error("orchestration run failed",
		"run_id", r.result.RunID,
		"flow", r.flow,
		"incident_id", r.incidentID,
		"error", err,
	)
	return nil, err
}
