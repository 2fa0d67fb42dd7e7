package registry

import "errors"

var (
	ErrNotFound     = errors.New("registry: not found")
	ErrInvalidInput = errors.New("registry: invalid input")

	// ErrDuplicateAssignment rejects a second active assignment for the
	// same (project, staff) pair.
	ErrDuplicateAssignment = errors.New("registry: project already assigned to this staff member")

	// ErrInvalidProjectPassword is deliberately opaque: the same error
	// regardless of how the supplied password was wrong.
	ErrInvalidProjectPassword = errors.New("registry: invalid project password")
)
