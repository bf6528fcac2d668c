package module

import "errors"

// Domain errors for the module package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, module.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a module ID or MAC does not exist.
	ErrNotFound = errors.New("module: not found")

	// ErrNotOwned is returned when a caller attempts an owner-only
	// operation on a module they do not own. Callers surface it exactly
	// like ErrNotFound so responses never reveal who owns what.
	ErrNotOwned = errors.New("module: not found or not owned")

	// ErrAlreadyClaimed is returned when claiming a module that already
	// has an owner.
	ErrAlreadyClaimed = errors.New("module: already claimed")

	// ErrInvalidInput is returned when registration or settings
	// validation fails.
	ErrInvalidInput = errors.New("module: invalid input")

	// ErrInvalidKind is returned when a sensor channel is not recognised.
	ErrInvalidKind = errors.New("module: invalid sensor kind")
)
