package models

import "errors"

// Sentinel errors surfaced by the queue engine. Handlers translate these
// to HTTP status codes in one place.
var (
	// ErrInvalidDepartment rejects an empty department identifier before
	// any side effect.
	ErrInvalidDepartment = errors.New("department must not be empty")

	// ErrPatientNotFound means the caller's identity could not be resolved
	// to a patient profile.
	ErrPatientNotFound = errors.New("patient profile not found")

	// ErrStoreUnavailable wraps persistence failures, including a bounded
	// conflict-retry that ran out of attempts. The whole operation is safe
	// to retry: ticket allocation and entry creation are one atomic unit.
	ErrStoreUnavailable = errors.New("queue store unavailable")

	// ErrAlreadyQueued means an insert was rejected because the patient
	// already holds a waiting or in_progress entry in that department. The
	// database enforces this; callers resolve it by returning the existing
	// entry.
	ErrAlreadyQueued = errors.New("patient already holds an active queue entry")

	// ErrNotFound is the generic missing-row error for lookups.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveEntry means a cancel was requested but the patient holds
	// no waiting or in_progress entry in that department.
	ErrNoActiveEntry = errors.New("no active queue entry")
)
