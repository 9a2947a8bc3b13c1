package services

import "errors"

// Outcome taxonomy the handlers branch on with errors.Is. Store failures are
// anything not wrapping one of these sentinels and surface as 500.
var (
	// ErrConflict: duplicate identity, or a custody/maintenance period already open.
	ErrConflict = errors.New("conflict")

	// ErrNotApplicable: closing a period when none is open. Benign for custody
	// close (no-op), reported for maintenance exit.
	ErrNotApplicable = errors.New("not applicable")

	// ErrValidation: a required identifying field is missing.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)
