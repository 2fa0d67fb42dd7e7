package registry

import "time"

// LockState is the closed state set of an assignment. Locked is the
// initial state; Unlocked is terminal.
type LockState string

const (
	Locked   LockState = "locked"
	Unlocked LockState = "unlocked"
)

// Organization owns projects. Referenced for display only.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is a password-protected unit of work. The password is stored
// hashed and never leaves the registry on reads.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	PasswordHash   string    `json:"-"`
	CreatedByID    string    `json:"created_by"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Assignment binds one project to one staff member. It starts Locked
// and the only transition is Locked -> Unlocked; records are never
// deleted in normal operation.
type Assignment struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	StaffID      string     `json:"staff_id"`
	AssignedByID string     `json:"assigned_by"`
	Notes        string     `json:"notes,omitempty"`
	State        LockState  `json:"state"`
	AssignedAt   time.Time  `json:"assigned_at"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
}

// ProjectView is a project joined with display fields for dashboards.
type ProjectView struct {
	Project
	OrganizationName  string `json:"organization_name"`
	CreatedByUsername string `json:"created_by_username,omitempty"`
}

// AssignmentView is an assignment joined with display fields from the
// staff, project and organization records it references.
type AssignmentView struct {
	Assignment
	StaffUsername      string `json:"staff_username"`
	StaffEmail         string `json:"staff_email,omitempty"`
	ProjectName        string `json:"project_name"`
	OrganizationName   string `json:"organization_name,omitempty"`
	AssignedByUsername string `json:"assigned_by_username,omitempty"`
}

// CreateInput carries the fields of an admin "assign project" request.
// ProjectPassword is the creation-time authorization check: an admin
// cannot assign a project they could not themselves unlock.
type CreateInput struct {
	ProjectID       string
	StaffID         string
	AssignedByID    string
	ProjectPassword string
	Notes           string
}
