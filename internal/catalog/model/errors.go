package model

import "errors"

var (
	// Per-record errors: counted into run statistics, never fatal.
	ErrMissingBarcode      = errors.New("missing barcode")
	ErrMissingExternalCode = errors.New("missing external code")
	ErrMissingSize         = errors.New("missing size")
	ErrNoCandidates        = errors.New("no candidates at any match level")

	// ErrLinkConflict is informational: an older import tried to replace a newer link.
	ErrLinkConflict = errors.New("link conflict")

	// Run-level errors.
	ErrConfigValidation = errors.New("invalid run configuration")
	ErrStorage          = errors.New("storage failure")
	ErrRunInProgress    = errors.New("a recommendation run is already in progress")
	ErrRunNotFound      = errors.New("run not found")
)
