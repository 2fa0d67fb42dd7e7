package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"staffgate.org/internal/auth"
	"staffgate.org/internal/ids"
	"staffgate.org/internal/registry"
)

var _ registry.Service = (*RegistryStore)(nil)

// Registry returns the assignment registry backed by this pool.
func (s *Store) Registry() *RegistryStore { return &RegistryStore{db: s.db} }

// RegistryStore implements the assignment registry on PostgreSQL. Row
// locks serialize concurrent unlocks of the same assignment; the unique
// index on (project_id, staff_id) rejects duplicate pairs.
type RegistryStore struct{ db *sql.DB }

const assignmentView = `
	select a.id, a.project_id, a.staff_id, a.assigned_by, coalesce(a.notes,''),
	       a.state, a.assigned_at, a.unlocked_at,
	       coalesce(su.username,''), coalesce(su.email,''),
	       coalesce(p.name,''), coalesce(o.name,''), coalesce(ab.username,'')
	from assignments a
	left join users su on su.id = a.staff_id
	left join users ab on ab.id = a.assigned_by
	left join projects p on p.id = a.project_id
	left join organizations o on o.id = p.organization_id`

func scanAssignmentView(scan func(dest ...any) error) (registry.AssignmentView, error) {
	var (
		v        registry.AssignmentView
		unlocked sql.NullTime
	)
	err := scan(&v.ID, &v.ProjectID, &v.StaffID, &v.AssignedByID, &v.Notes,
		&v.State, &v.AssignedAt, &unlocked,
		&v.StaffUsername, &v.StaffEmail, &v.ProjectName, &v.OrganizationName, &v.AssignedByUsername)
	if err != nil {
		return registry.AssignmentView{}, err
	}
	if unlocked.Valid {
		t := unlocked.Time
		v.UnlockedAt = &t
	}
	return v, nil
}

func (s *RegistryStore) Create(ctx context.Context, in registry.CreateInput) (registry.AssignmentView, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.StaffID = strings.TrimSpace(in.StaffID)
	in.AssignedByID = strings.TrimSpace(in.AssignedByID)
	if in.ProjectID == "" || in.StaffID == "" || in.AssignedByID == "" {
		return registry.AssignmentView{}, fmt.Errorf("%w: project_id and staff_id are required", registry.ErrInvalidInput)
	}

	var (
		staffRole   string
		staffActive bool
	)
	err := s.db.QueryRowContext(ctx,
		`select role, is_active from users where id=$1`, in.StaffID).
		Scan(&staffRole, &staffActive)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && (staffRole != string(auth.RoleStaff) || !staffActive)) {
		return registry.AssignmentView{}, fmt.Errorf("%w: staff member", registry.ErrNotFound)
	}
	if err != nil {
		return registry.AssignmentView{}, err
	}

	var hash string
	err = s.db.QueryRowContext(ctx,
		`select password_hash from projects where id=$1 and is_active`, in.ProjectID).
		Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.AssignmentView{}, fmt.Errorf("%w: project", registry.ErrNotFound)
	}
	if err != nil {
		return registry.AssignmentView{}, err
	}
	if err := auth.VerifyPassword(hash, in.ProjectPassword); err != nil {
		return registry.AssignmentView{}, registry.ErrInvalidProjectPassword
	}

	id := ids.New()
	_, err = s.db.ExecContext(ctx,
		`insert into assignments(id, project_id, staff_id, assigned_by, notes, state, assigned_at)
		 values($1,$2,$3,$4,nullif($5,''),$6,$7)`,
		id, in.ProjectID, in.StaffID, in.AssignedByID, in.Notes, registry.Locked, time.Now().UTC())
	if isUniqueViolation(err) {
		return registry.AssignmentView{}, registry.ErrDuplicateAssignment
	}
	if isForeignKeyViolation(err) {
		return registry.AssignmentView{}, fmt.Errorf("%w: referenced record", registry.ErrNotFound)
	}
	if err != nil {
		return registry.AssignmentView{}, err
	}
	return s.find(ctx, id)
}

func (s *RegistryStore) Unlock(ctx context.Context, assignmentID, staffID, projectPassword string) (registry.AssignmentView, error) {
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" || strings.TrimSpace(staffID) == "" {
		return registry.AssignmentView{}, fmt.Errorf("%w: assignment_id is required", registry.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registry.AssignmentView{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Row lock so two racing unlocks resolve to one transition.
	var (
		owner string
		state registry.LockState
		hash  string
	)
	err = tx.QueryRowContext(ctx, `
		select a.staff_id, a.state, p.password_hash
		from assignments a
		join projects p on p.id = a.project_id
		where a.id=$1
		for update of a
	`, assignmentID).Scan(&owner, &state, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.AssignmentView{}, fmt.Errorf("%w: assignment", registry.ErrNotFound)
	}
	if err != nil {
		return registry.AssignmentView{}, err
	}

	// Ownership before the password check: a wrong caller learns
	// nothing about the password.
	if owner != staffID {
		return registry.AssignmentView{}, fmt.Errorf("%w: assignment belongs to another staff member", auth.ErrForbidden)
	}
	if err := auth.VerifyPassword(hash, projectPassword); err != nil {
		return registry.AssignmentView{}, registry.ErrInvalidProjectPassword
	}

	if state != registry.Unlocked {
		if _, err := tx.ExecContext(ctx,
			`update assignments set state=$2, unlocked_at=$3 where id=$1`,
			assignmentID, registry.Unlocked, time.Now().UTC()); err != nil {
			return registry.AssignmentView{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return registry.AssignmentView{}, err
	}
	return s.find(ctx, assignmentID)
}

func (s *RegistryStore) find(ctx context.Context, id string) (registry.AssignmentView, error) {
	row := s.db.QueryRowContext(ctx, assignmentView+` where a.id=$1`, id)
	v, err := scanAssignmentView(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.AssignmentView{}, fmt.Errorf("%w: assignment", registry.ErrNotFound)
	}
	return v, err
}

func (s *RegistryStore) ListForStaff(ctx context.Context, staffID string) ([]registry.AssignmentView, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, fmt.Errorf("%w: staff_id is required", registry.ErrInvalidInput)
	}
	return s.listWhere(ctx, ` where a.staff_id=$1`, staffID)
}

func (s *RegistryStore) ListAll(ctx context.Context) ([]registry.AssignmentView, error) {
	return s.listWhere(ctx, ``)
}

func (s *RegistryStore) listWhere(ctx context.Context, where string, args ...any) ([]registry.AssignmentView, error) {
	rows, err := s.db.QueryContext(ctx,
		assignmentView+where+` order by a.assigned_at desc, a.id desc`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []registry.AssignmentView
	for rows.Next() {
		v, err := scanAssignmentView(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *RegistryStore) ListProjects(ctx context.Context) ([]registry.ProjectView, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.organization_id, p.name, coalesce(p.description,''),
		       p.created_by, p.is_active, p.created_at,
		       coalesce(o.name,''), coalesce(u.username,'')
		from projects p
		left join organizations o on o.id = p.organization_id
		left join users u on u.id = p.created_by
		where p.is_active
		order by p.created_at desc, p.id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []registry.ProjectView
	for rows.Next() {
		var pv registry.ProjectView
		if err := rows.Scan(&pv.ID, &pv.OrganizationID, &pv.Name, &pv.Description,
			&pv.CreatedByID, &pv.Active, &pv.CreatedAt,
			&pv.OrganizationName, &pv.CreatedByUsername); err != nil {
			return nil, err
		}
		res = append(res, pv)
	}
	return res, rows.Err()
}
