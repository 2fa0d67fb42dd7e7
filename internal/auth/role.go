package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles. Adding a role means
// extending the switch in Can, which the compiler and tests keep honest.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleSuperUser Role = "superuser"
)

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStaff:
		return RoleStaff, nil
	case RoleSuperUser:
		return RoleSuperUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// Capability is a named permission checked by the access gate.
type Capability string

const (
	CapabilityViewAllStaff        Capability = "staff.view_all"
	CapabilityViewAllProjects     Capability = "projects.view_all"
	CapabilityViewAllAssignments  Capability = "assignments.view_all"
	CapabilityCreateAssignment    Capability = "assignments.create"
	CapabilityViewOwnAssignments  Capability = "assignments.view_own"
	CapabilityUnlockOwnAssignment Capability = "assignments.unlock_own"
)

// Can reports whether the role grants the capability. Ownership-scoped
// capabilities still require the caller to match the record's staff
// reference; that check happens where the record is loaded.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin, RoleSuperUser:
		switch c {
		case CapabilityViewAllStaff,
			CapabilityViewAllProjects,
			CapabilityViewAllAssignments,
			CapabilityCreateAssignment:
			return true
		case CapabilityViewOwnAssignments, CapabilityUnlockOwnAssignment:
			return false
		}
	case RoleStaff:
		switch c {
		case CapabilityViewOwnAssignments, CapabilityUnlockOwnAssignment:
			return true
		case CapabilityViewAllStaff,
			CapabilityViewAllProjects,
			CapabilityViewAllAssignments,
			CapabilityCreateAssignment:
			return false
		}
	}
	return false
}

// Authorize admits or rejects a caller for a required capability.
// Unauthenticated callers are rejected before any role check runs.
func Authorize(id Identity, c Capability) error {
	if id.IsZero() {
		return ErrUnauthenticated
	}
	if !id.Role.Can(c) {
		return fmt.Errorf("%w: role %s lacks %s", ErrForbidden, id.Role, c)
	}
	return nil
}
