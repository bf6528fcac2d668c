package greenhouse

import "errors"

// Domain errors for the greenhouse package.
var (
	// ErrNotFound is returned when a greenhouse does not exist or is not
	// owned by the caller. The two cases are deliberately not
	// distinguishable.
	ErrNotFound = errors.New("greenhouse: not found")

	// ErrInvalidInput is returned when creation or membership validation
	// fails. The wrapped message names the offending module or field.
	ErrInvalidInput = errors.New("greenhouse: invalid input")

	// ErrNameTaken is returned when the owner already has a greenhouse
	// with the requested name.
	ErrNameTaken = errors.New("greenhouse: name already in use")

	// ErrNotAMember is returned when promoting a module that is not a
	// member of the greenhouse.
	ErrNotAMember = errors.New("greenhouse: module is not a member")

	// ErrModuleNotOwned is returned when unclaiming a module that does not
	// exist or belongs to someone else. The two cases share one error.
	ErrModuleNotOwned = errors.New("greenhouse: module not found or not owned")
)
