package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"staffgate.org/internal/auth"
)

func newTestRegistry(t *testing.T) (*InMemory, Project) {
	t.Helper()
	users := auth.NewMemoryUserStore()
	users.Put(&auth.User{ID: "u-alice", Username: "alice", Email: "alice@techcorp.example", Role: auth.RoleAdmin, Active: true})
	users.Put(&auth.User{ID: "u-bob", Username: "bob", Email: "bob@techcorp.example", Role: auth.RoleStaff, Active: true})
	users.Put(&auth.User{ID: "u-jane", Username: "jane", Email: "jane@techcorp.example", Role: auth.RoleStaff, Active: true})

	reg := NewInMemory(users)
	org := reg.AddOrganization(Organization{Name: "Tech Corp"})
	project, err := reg.AddProject(Project{
		OrganizationID: org.ID,
		Name:           "Phoenix",
		Description:    "Relaunch of the customer portal",
		CreatedByID:    "u-alice",
		Active:         true,
	}, "p4ss")
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	return reg, project
}

func assign(t *testing.T, reg *InMemory, projectID, staffID string) AssignmentView {
	t.Helper()
	view, err := reg.Create(context.Background(), CreateInput{
		ProjectID:       projectID,
		StaffID:         staffID,
		AssignedByID:    "u-alice",
		ProjectPassword: "p4ss",
		Notes:           "Q1 kickoff",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return view
}

func TestCreateStartsLockedWithJoinedFields(t *testing.T) {
	reg, project := newTestRegistry(t)
	view := assign(t, reg, project.ID, "u-bob")

	if view.State != Locked {
		t.Fatalf("expected new assignment Locked, got %s", view.State)
	}
	if view.UnlockedAt != nil {
		t.Fatal("unlocked_at must be nil while Locked")
	}
	if view.Notes != "Q1 kickoff" {
		t.Fatalf("unexpected notes: %q", view.Notes)
	}
	if view.StaffUsername != "bob" || view.ProjectName != "Phoenix" || view.OrganizationName != "Tech Corp" || view.AssignedByUsername != "alice" {
		t.Fatalf("display joins incomplete: %+v", view)
	}
}

func TestCreateRejectsWrongProjectPassword(t *testing.T) {
	reg, project := newTestRegistry(t)
	_, err := reg.Create(context.Background(), CreateInput{
		ProjectID:       project.ID,
		StaffID:         "u-bob",
		AssignedByID:    "u-alice",
		ProjectPassword: "wrong",
	})
	if !errors.Is(err, ErrInvalidProjectPassword) {
		t.Fatalf("expected ErrInvalidProjectPassword, got %v", err)
	}
	// Nothing was persisted.
	all, err := reg.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no assignments, got %d", len(all))
	}
}

func TestCreateRejectsUnknownReferences(t *testing.T) {
	reg, project := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Create(ctx, CreateInput{ProjectID: project.ID, StaffID: "u-ghost", AssignedByID: "u-alice", ProjectPassword: "p4ss"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown staff: expected ErrNotFound, got %v", err)
	}
	// Admins are not assignable staff.
	if _, err := reg.Create(ctx, CreateInput{ProjectID: project.ID, StaffID: "u-alice", AssignedByID: "u-alice", ProjectPassword: "p4ss"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("admin as staff: expected ErrNotFound, got %v", err)
	}
	if _, err := reg.Create(ctx, CreateInput{ProjectID: "missing", StaffID: "u-bob", AssignedByID: "u-alice", ProjectPassword: "p4ss"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown project: expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsDuplicatePair(t *testing.T) {
	reg, project := newTestRegistry(t)
	assign(t, reg, project.ID, "u-bob")

	_, err := reg.Create(context.Background(), CreateInput{
		ProjectID:       project.ID,
		StaffID:         "u-bob",
		AssignedByID:    "u-alice",
		ProjectPassword: "p4ss",
	})
	if !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
	// The same project may still go to a different staff member.
	if _, err := reg.Create(context.Background(), CreateInput{
		ProjectID:       project.ID,
		StaffID:         "u-jane",
		AssignedByID:    "u-alice",
		ProjectPassword: "p4ss",
	}); err != nil {
		t.Fatalf("assign to second staff: %v", err)
	}
}

func TestUnlockTransitionsOnceAndIsIdempotent(t *testing.T) {
	reg, project := newTestRegistry(t)
	view := assign(t, reg, project.ID, "u-bob")
	ctx := context.Background()

	unlocked, err := reg.Unlock(ctx, view.ID, "u-bob", "p4ss")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if unlocked.State != Unlocked || unlocked.UnlockedAt == nil {
		t.Fatalf("expected Unlocked with timestamp, got %+v", unlocked.Assignment)
	}

	again, err := reg.Unlock(ctx, view.ID, "u-bob", "p4ss")
	if err != nil {
		t.Fatalf("idempotent Unlock: %v", err)
	}
	if again.State != Unlocked || !again.UnlockedAt.Equal(*unlocked.UnlockedAt) {
		t.Fatalf("idempotent unlock changed the record: %+v", again.Assignment)
	}
}

func TestUnlockWrongPasswordLeavesLocked(t *testing.T) {
	reg, project := newTestRegistry(t)
	view := assign(t, reg, project.ID, "u-bob")
	ctx := context.Background()

	if _, err := reg.Unlock(ctx, view.ID, "u-bob", "wrong"); !errors.Is(err, ErrInvalidProjectPassword) {
		t.Fatalf("expected ErrInvalidProjectPassword, got %v", err)
	}
	mine, err := reg.ListForStaff(ctx, "u-bob")
	if err != nil {
		t.Fatalf("ListForStaff: %v", err)
	}
	if len(mine) != 1 || mine[0].State != Locked || mine[0].UnlockedAt != nil {
		t.Fatalf("state changed after failed unlock: %+v", mine)
	}
}

func TestUnlockForeignAssignmentForbiddenBeforePasswordCheck(t *testing.T) {
	reg, project := newTestRegistry(t)
	view := assign(t, reg, project.ID, "u-bob")

	// Correct password must not matter for a foreign assignment.
	if _, err := reg.Unlock(context.Background(), view.ID, "u-jane", "p4ss"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUnlockUnknownAssignment(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if _, err := reg.Unlock(context.Background(), "missing", "u-bob", "p4ss"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentUnlocksSingleTransition(t *testing.T) {
	reg, project := newTestRegistry(t)
	view := assign(t, reg, project.ID, "u-bob")
	ctx := context.Background()

	const n = 20
	results := make([]AssignmentView, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Unlock(ctx, view.ID, "u-bob", "p4ss")
		}(i)
	}
	wg.Wait()

	var unlockedAt *AssignmentView
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("racing unlock %d failed: %v", i, errs[i])
		}
		if results[i].State != Unlocked || results[i].UnlockedAt == nil {
			t.Fatalf("racing unlock %d returned non-unlocked view: %+v", i, results[i].Assignment)
		}
		if unlockedAt == nil {
			unlockedAt = &results[i]
		} else if !results[i].UnlockedAt.Equal(*unlockedAt.UnlockedAt) {
			t.Fatalf("observed two different unlock timestamps")
		}
	}
}

func TestListOrdering(t *testing.T) {
	reg, project := newTestRegistry(t)
	ctx := context.Background()

	second, err := reg.AddProject(Project{
		OrganizationID: project.OrganizationID,
		Name:           "Atlas",
		Description:    "Data warehouse migration",
		CreatedByID:    "u-alice",
		Active:         true,
	}, "p4ss")
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	first := assign(t, reg, project.ID, "u-bob")
	latest := assign(t, reg, second.ID, "u-bob")

	mine, err := reg.ListForStaff(ctx, "u-bob")
	if err != nil {
		t.Fatalf("ListForStaff: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(mine))
	}
	if mine[0].ID != latest.ID || mine[1].ID != first.ID {
		t.Fatalf("expected newest-first ordering, got %s then %s", mine[0].ID, mine[1].ID)
	}

	all, err := reg.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 assignments in ListAll, got %d", len(all))
	}
}
