// Package workflow composes the access gate, the assignment registry
// and the user directory into the two role-specific use cases: an admin
// assigning a project and a staff member unlocking one. Authorization
// failures surface before any registry call, so rejected requests leave
// no partial side effects.
package workflow

import (
	"context"
	"errors"
	"time"

	"staffgate.org/internal/audit"
	"staffgate.org/internal/auth"
	"staffgate.org/internal/registry"
	"staffgate.org/internal/stream"
)

// Service serves the role-gated use cases over a validated Identity.
// Session validation itself happens at the HTTP edge; every method here
// requires the explicit identity of the caller.
type Service struct {
	registry registry.Service
	users    auth.UserStore
	events   *stream.Stream // optional
}

// New constructs the orchestrator. The stream may be nil.
func New(reg registry.Service, users auth.UserStore, events *stream.Stream) (*Service, error) {
	if reg == nil || users == nil {
		return nil, errors.New("workflow: registry and user store are required")
	}
	return &Service{registry: reg, users: users, events: events}, nil
}

// AssignProjectInput carries the admin "assign project" request.
type AssignProjectInput struct {
	StaffID         string
	ProjectID       string
	ProjectPassword string
	Notes           string
}

// AssignProject creates a Locked assignment on behalf of an admin.
func (s *Service) AssignProject(ctx context.Context, caller auth.Identity, in AssignProjectInput) (registry.AssignmentView, error) {
	if err := auth.Authorize(caller, auth.CapabilityCreateAssignment); err != nil {
		return registry.AssignmentView{}, err
	}
	view, err := s.registry.Create(ctx, registry.CreateInput{
		ProjectID:       in.ProjectID,
		StaffID:         in.StaffID,
		AssignedByID:    caller.UserID,
		ProjectPassword: in.ProjectPassword,
		Notes:           in.Notes,
	})
	if err != nil {
		return registry.AssignmentView{}, err
	}
	_ = audit.LogEvent(ctx, "assignment.create", map[string]any{
		"assignment_id": view.ID,
		"project_id":    view.ProjectID,
		"staff_id":      view.StaffID,
	})
	s.publish(stream.EventAssignmentCreated, view)
	return view, nil
}

// UnlockProject transitions the caller's own assignment to Unlocked.
func (s *Service) UnlockProject(ctx context.Context, caller auth.Identity, assignmentID, projectPassword string) (registry.AssignmentView, error) {
	if err := auth.Authorize(caller, auth.CapabilityUnlockOwnAssignment); err != nil {
		return registry.AssignmentView{}, err
	}
	view, err := s.registry.Unlock(ctx, assignmentID, caller.UserID, projectPassword)
	if err != nil {
		return registry.AssignmentView{}, err
	}
	_ = audit.LogEvent(ctx, "assignment.unlock", map[string]any{
		"assignment_id": view.ID,
		"project_id":    view.ProjectID,
	})
	s.publish(stream.EventAssignmentUnlocked, view)
	return view, nil
}

// ListStaff returns all active staff members (admin dashboard read).
func (s *Service) ListStaff(ctx context.Context, caller auth.Identity) ([]*auth.User, error) {
	if err := auth.Authorize(caller, auth.CapabilityViewAllStaff); err != nil {
		return nil, err
	}
	return s.users.ListStaff(ctx)
}

// ListProjects returns all active projects (admin dashboard read).
func (s *Service) ListProjects(ctx context.Context, caller auth.Identity) ([]registry.ProjectView, error) {
	if err := auth.Authorize(caller, auth.CapabilityViewAllProjects); err != nil {
		return nil, err
	}
	return s.registry.ListProjects(ctx)
}

// ListAssignments returns every assignment (admin dashboard read).
func (s *Service) ListAssignments(ctx context.Context, caller auth.Identity) ([]registry.AssignmentView, error) {
	if err := auth.Authorize(caller, auth.CapabilityViewAllAssignments); err != nil {
		return nil, err
	}
	return s.registry.ListAll(ctx)
}

// MyAssignments returns the caller's own assignments (staff read).
func (s *Service) MyAssignments(ctx context.Context, caller auth.Identity) ([]registry.AssignmentView, error) {
	if err := auth.Authorize(caller, auth.CapabilityViewOwnAssignments); err != nil {
		return nil, err
	}
	return s.registry.ListForStaff(ctx, caller.UserID)
}

func (s *Service) publish(eventType string, view registry.AssignmentView) {
	if s.events == nil {
		return
	}
	s.events.Publish(stream.Event{
		Type:          eventType,
		AssignmentID:  view.ID,
		ProjectName:   view.ProjectName,
		StaffUsername: view.StaffUsername,
		Timestamp:     time.Now().UTC(),
	})
}
