package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"staffgate.org/internal/auth"
	"staffgate.org/internal/ids"
)

// Service defines the assignment registry operations.
type Service interface {
	Create(ctx context.Context, in CreateInput) (AssignmentView, error)
	Unlock(ctx context.Context, assignmentID, staffID, projectPassword string) (AssignmentView, error)
	ListForStaff(ctx context.Context, staffID string) ([]AssignmentView, error)
	ListAll(ctx context.Context) ([]AssignmentView, error)
	ListProjects(ctx context.Context) ([]ProjectView, error)
}

// InMemory implements Service with in-process concurrency safety. The
// single mutex serializes the mutation path, so two racing unlocks of
// one assignment resolve to exactly one transition; password
// verification runs outside the lock since it is a pure read.
type InMemory struct {
	users auth.UserStore

	mu          sync.RWMutex
	orgs        map[string]*Organization
	projects    map[string]*Project
	assignments map[string]*Assignment
	pairIndex   map[string]string // projectID + "/" + staffID -> assignment id

	now func() time.Time
}

// NewInMemory creates an empty registry backed by the given user
// directory for staff existence checks and display joins.
func NewInMemory(users auth.UserStore) *InMemory {
	return &InMemory{
		users:       users,
		orgs:        make(map[string]*Organization),
		projects:    make(map[string]*Project),
		assignments: make(map[string]*Assignment),
		pairIndex:   make(map[string]string),
		now:         time.Now,
	}
}

// WithClock overrides the time source (useful for tests).
func (s *InMemory) WithClock(fn func() time.Time) *InMemory {
	if fn != nil {
		s.now = fn
	}
	return s
}

// AddOrganization seeds an organization record.
func (s *InMemory) AddOrganization(org Organization) Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		org.ID = ids.New()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = s.now().UTC()
	}
	cp := org
	s.orgs[cp.ID] = &cp
	return cp
}

// AddProject seeds a project, hashing the given plaintext password.
func (s *InMemory) AddProject(p Project, password string) (Project, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	p.PasswordHash = hash
	cp := p
	s.projects[cp.ID] = &cp
	return cp, nil
}

func pairKey(projectID, staffID string) string {
	return projectID + "/" + staffID
}

func (s *InMemory) Create(ctx context.Context, in CreateInput) (AssignmentView, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.StaffID = strings.TrimSpace(in.StaffID)
	in.AssignedByID = strings.TrimSpace(in.AssignedByID)
	if in.ProjectID == "" || in.StaffID == "" || in.AssignedByID == "" {
		return AssignmentView{}, fmt.Errorf("%w: project_id and staff_id are required", ErrInvalidInput)
	}

	staff, err := s.users.Find(ctx, in.StaffID)
	if err != nil || staff.Role != auth.RoleStaff || !staff.Active {
		return AssignmentView{}, fmt.Errorf("%w: staff member", ErrNotFound)
	}

	s.mu.RLock()
	project, ok := s.projects[in.ProjectID]
	if ok && !project.Active {
		ok = false
	}
	var hash string
	if ok {
		hash = project.PasswordHash
	}
	s.mu.RUnlock()
	if !ok {
		return AssignmentView{}, fmt.Errorf("%w: project", ErrNotFound)
	}

	if err := auth.VerifyPassword(hash, in.ProjectPassword); err != nil {
		return AssignmentView{}, ErrInvalidProjectPassword
	}

	s.mu.Lock()
	if _, exists := s.pairIndex[pairKey(in.ProjectID, in.StaffID)]; exists {
		s.mu.Unlock()
		return AssignmentView{}, ErrDuplicateAssignment
	}
	a := &Assignment{
		ID:           ids.New(),
		ProjectID:    in.ProjectID,
		StaffID:      in.StaffID,
		AssignedByID: in.AssignedByID,
		Notes:        in.Notes,
		State:        Locked,
		AssignedAt:   s.now().UTC(),
	}
	s.assignments[a.ID] = a
	s.pairIndex[pairKey(in.ProjectID, in.StaffID)] = a.ID
	cp := *a
	s.mu.Unlock()

	return s.view(ctx, cp), nil
}

func (s *InMemory) Unlock(ctx context.Context, assignmentID, staffID, projectPassword string) (AssignmentView, error) {
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" || strings.TrimSpace(staffID) == "" {
		return AssignmentView{}, fmt.Errorf("%w: assignment_id is required", ErrInvalidInput)
	}

	s.mu.RLock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		s.mu.RUnlock()
		return AssignmentView{}, fmt.Errorf("%w: assignment", ErrNotFound)
	}
	owner := a.StaffID
	project := s.projects[a.ProjectID]
	var hash string
	if project != nil {
		hash = project.PasswordHash
	}
	s.mu.RUnlock()

	// Ownership before the password check: a wrong caller learns
	// nothing about the password.
	if owner != staffID {
		return AssignmentView{}, fmt.Errorf("%w: assignment belongs to another staff member", auth.ErrForbidden)
	}
	if err := auth.VerifyPassword(hash, projectPassword); err != nil {
		return AssignmentView{}, ErrInvalidProjectPassword
	}

	s.mu.Lock()
	a, ok = s.assignments[assignmentID]
	if !ok {
		s.mu.Unlock()
		return AssignmentView{}, fmt.Errorf("%w: assignment", ErrNotFound)
	}
	if a.State != Unlocked {
		now := s.now().UTC()
		a.State = Unlocked
		a.UnlockedAt = &now
	}
	cp := *a
	s.mu.Unlock()

	return s.view(ctx, cp), nil
}

func (s *InMemory) ListForStaff(ctx context.Context, staffID string) ([]AssignmentView, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, fmt.Errorf("%w: staff_id is required", ErrInvalidInput)
	}
	return s.list(ctx, func(a *Assignment) bool { return a.StaffID == staffID })
}

func (s *InMemory) ListAll(ctx context.Context) ([]AssignmentView, error) {
	return s.list(ctx, func(*Assignment) bool { return true })
}

func (s *InMemory) list(ctx context.Context, keep func(*Assignment) bool) ([]AssignmentView, error) {
	s.mu.RLock()
	var records []Assignment
	for _, a := range s.assignments {
		if keep(a) {
			records = append(records, *a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].AssignedAt.Equal(records[j].AssignedAt) {
			return records[i].AssignedAt.After(records[j].AssignedAt)
		}
		return records[i].ID > records[j].ID
	})

	out := make([]AssignmentView, 0, len(records))
	for _, rec := range records {
		out = append(out, s.view(ctx, rec))
	}
	return out, nil
}

func (s *InMemory) ListProjects(ctx context.Context) ([]ProjectView, error) {
	s.mu.RLock()
	var records []ProjectView
	for _, p := range s.projects {
		if !p.Active {
			continue
		}
		pv := ProjectView{Project: *p}
		if org, ok := s.orgs[p.OrganizationID]; ok {
			pv.OrganizationName = org.Name
		}
		records = append(records, pv)
	}
	s.mu.RUnlock()

	for i := range records {
		if u, err := s.users.Find(ctx, records[i].CreatedByID); err == nil {
			records[i].CreatedByUsername = u.Username
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// view joins an assignment with display fields. Joins are best-effort:
// a missing referenced record leaves its display fields blank.
func (s *InMemory) view(ctx context.Context, a Assignment) AssignmentView {
	v := AssignmentView{Assignment: a}

	s.mu.RLock()
	if p, ok := s.projects[a.ProjectID]; ok {
		v.ProjectName = p.Name
		if org, ok := s.orgs[p.OrganizationID]; ok {
			v.OrganizationName = org.Name
		}
	}
	s.mu.RUnlock()

	if staff, err := s.users.Find(ctx, a.StaffID); err == nil {
		v.StaffUsername = staff.Username
		v.StaffEmail = staff.Email
	}
	if by, err := s.users.Find(ctx, a.AssignedByID); err == nil {
		v.AssignedByUsername = by.Username
	}
	return v
}
