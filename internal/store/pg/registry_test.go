package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"staffgate.org/internal/auth"
	"staffgate.org/internal/registry"
)

func viewColumns() []string {
	return []string{
		"id", "project_id", "staff_id", "assigned_by", "notes",
		"state", "assigned_at", "unlocked_at",
		"staff_username", "staff_email", "project_name", "organization_name", "assigned_by_username",
	}
}

func TestCreateAssignment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	hash, err := auth.HashPassword("p4ss")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	assignedAt := time.Now().UTC()

	mock.ExpectQuery("select role, is_active from users").WithArgs("u-bob").
		WillReturnRows(sqlmock.NewRows([]string{"role", "is_active"}).AddRow("staff", true))
	mock.ExpectQuery("select password_hash from projects").WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	mock.ExpectExec("insert into assignments").
		WithArgs(sqlmock.AnyArg(), "p-1", "u-bob", "u-alice", "Q1 kickoff", "locked", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select a.id, a.project_id").WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(viewColumns()).
			AddRow("a-1", "p-1", "u-bob", "u-alice", "Q1 kickoff",
				"locked", assignedAt, nil,
				"bob", "bob@techcorp.example", "Phoenix", "Tech Corp", "alice"))

	view, err := store.Create(context.Background(), registry.CreateInput{
		ProjectID:       "p-1",
		StaffID:         "u-bob",
		AssignedByID:    "u-alice",
		ProjectPassword: "p4ss",
		Notes:           "Q1 kickoff",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.State != registry.Locked || view.ProjectName != "Phoenix" || view.AssignedByUsername != "alice" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAssignmentRejectsWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	hash, _ := auth.HashPassword("p4ss")
	mock.ExpectQuery("select role, is_active from users").WithArgs("u-bob").
		WillReturnRows(sqlmock.NewRows([]string{"role", "is_active"}).AddRow("staff", true))
	mock.ExpectQuery("select password_hash from projects").WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))

	_, err = store.Create(context.Background(), registry.CreateInput{
		ProjectID: "p-1", StaffID: "u-bob", AssignedByID: "u-alice", ProjectPassword: "wrong",
	})
	if !errors.Is(err, registry.ErrInvalidProjectPassword) {
		t.Fatalf("expected ErrInvalidProjectPassword, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAssignmentMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	hash, _ := auth.HashPassword("p4ss")
	mock.ExpectQuery("select role, is_active from users").WithArgs("u-bob").
		WillReturnRows(sqlmock.NewRows([]string{"role", "is_active"}).AddRow("staff", true))
	mock.ExpectQuery("select password_hash from projects").WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	mock.ExpectExec("insert into assignments").
		WithArgs(sqlmock.AnyArg(), "p-1", "u-bob", "u-alice", "", "locked", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "assignments_project_id_staff_id_key"})

	_, err = store.Create(context.Background(), registry.CreateInput{
		ProjectID: "p-1", StaffID: "u-bob", AssignedByID: "u-alice", ProjectPassword: "p4ss",
	})
	if !errors.Is(err, registry.ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
}

func TestCreateAssignmentUnknownStaff(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	mock.ExpectQuery("select role, is_active from users").WithArgs("u-ghost").
		WillReturnRows(sqlmock.NewRows([]string{"role", "is_active"}))

	_, err = store.Create(context.Background(), registry.CreateInput{
		ProjectID: "p-1", StaffID: "u-ghost", AssignedByID: "u-alice", ProjectPassword: "p4ss",
	})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnlockAssignment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	hash, _ := auth.HashPassword("p4ss")
	unlockedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select a.staff_id, a.state, p.password_hash").WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"staff_id", "state", "password_hash"}).
			AddRow("u-bob", "locked", hash))
	mock.ExpectExec("update assignments set state").
		WithArgs("a-1", "unlocked", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("select a.id, a.project_id").WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows(viewColumns()).
			AddRow("a-1", "p-1", "u-bob", "u-alice", "",
				"unlocked", unlockedAt.Add(-time.Hour), unlockedAt,
				"bob", "bob@techcorp.example", "Phoenix", "Tech Corp", "alice"))

	view, err := store.Unlock(context.Background(), "a-1", "u-bob", "p4ss")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if view.State != registry.Unlocked || view.UnlockedAt == nil {
		t.Fatalf("unexpected view: %+v", view)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUnlockForeignAssignment(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	hash, _ := auth.HashPassword("p4ss")
	mock.ExpectBegin()
	mock.ExpectQuery("select a.staff_id, a.state, p.password_hash").WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"staff_id", "state", "password_hash"}).
			AddRow("u-bob", "locked", hash))
	mock.ExpectRollback()

	_, err = store.Unlock(context.Background(), "a-1", "u-jane", "p4ss")
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUnlockAlreadyUnlockedSkipsUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	hash, _ := auth.HashPassword("p4ss")
	unlockedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select a.staff_id, a.state, p.password_hash").WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"staff_id", "state", "password_hash"}).
			AddRow("u-bob", "unlocked", hash))
	mock.ExpectCommit()
	mock.ExpectQuery("select a.id, a.project_id").WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows(viewColumns()).
			AddRow("a-1", "p-1", "u-bob", "u-alice", "",
				"unlocked", unlockedAt.Add(-time.Hour), unlockedAt,
				"bob", "bob@techcorp.example", "Phoenix", "Tech Corp", "alice"))

	view, err := store.Unlock(context.Background(), "a-1", "u-bob", "p4ss")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if view.State != registry.Unlocked {
		t.Fatalf("unexpected view: %+v", view)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListForStaff(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db).Registry()

	now := time.Now().UTC()
	mock.ExpectQuery("select a.id, a.project_id").WithArgs("u-bob").
		WillReturnRows(sqlmock.NewRows(viewColumns()).
			AddRow("a-2", "p-2", "u-bob", "u-alice", "", "locked", now, nil,
				"bob", "", "Atlas", "Tech Corp", "alice").
			AddRow("a-1", "p-1", "u-bob", "u-alice", "", "unlocked", now.Add(-time.Hour), now,
				"bob", "", "Phoenix", "Tech Corp", "alice"))

	views, err := store.ListForStaff(context.Background(), "u-bob")
	if err != nil {
		t.Fatalf("ListForStaff: %v", err)
	}
	if len(views) != 2 || views[0].ProjectName != "Atlas" || views[1].State != registry.Unlocked {
		t.Fatalf("unexpected views: %+v", views)
	}
}
