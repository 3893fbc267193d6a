package repositories

import (
	"context"
	"time"

	"medisync-backend/internal/models"
)

// JoinParams carries everything the store needs to admit a patient in one
// atomic unit: allocate the next ticket for (department, day), count the
// waiting entries, compute the advisory estimate, and insert the entry.
type JoinParams struct {
	PatientID  int64
	Department string
	// Day scopes the ticket sequence; use timeutil.ServiceDay of the
	// request time.
	Day time.Time
	// ServiceTime is the configured per-patient service time fed to the
	// wait estimator.
	ServiceTime time.Duration
}

// AdvanceResult is the outcome of one advance pass over a department.
// Serving is nil when nothing was waiting.
type AdvanceResult struct {
	Completed []*models.QueueEntry
	Serving   *models.QueueEntry
}

// QueueStore is the durable queue collection. Implementations must make
// Join and Advance atomic: a ticket number is never observable without its
// entry, and at most one entry per department ends up in_progress.
//
// Lock scope is required to be no coarser than one department: the counter
// lock covers exactly one (department, day) row and the advance lock one
// department's rows, so unrelated departments proceed fully in parallel.
type QueueStore interface {
	// FindActive returns the patient's waiting or in_progress entry in the
	// department, or models.ErrNotFound.
	FindActive(ctx context.Context, patientID int64, department string) (*models.QueueEntry, error)

	// Join atomically allocates the next ticket number and inserts a
	// waiting entry carrying the wait estimate for the current depth.
	// When the patient already holds an active entry in the department it
	// returns models.ErrAlreadyQueued and leaves the counter untouched.
	Join(ctx context.Context, p JoinParams) (*models.QueueEntry, error)

	// Advance atomically completes every in_progress entry in the
	// department (stamping finished_at with now) and promotes the single
	// oldest waiting entry, ordered by creation time then ticket number.
	Advance(ctx context.Context, department string, now time.Time) (*AdvanceResult, error)

	// CancelActive moves the patient's active entry in the department to
	// cancelled, or returns models.ErrNoActiveEntry.
	CancelActive(ctx context.Context, patientID int64, department string) (*models.QueueEntry, error)

	// ListByStatus returns the department's entries in one status, oldest
	// first (creation time, then ticket number).
	ListByStatus(ctx context.Context, department, status string) ([]*models.QueueEntry, error)

	// CountByStatus returns the number of entries in one status.
	CountByStatus(ctx context.Context, department, status string) (int, error)

	// CompletedSince counts entries finished at or after the given time.
	CompletedSince(ctx context.Context, department string, since time.Time) (int, error)

	// CurrentServing returns the department's in_progress entry, or
	// models.ErrNotFound when no one is being served.
	CurrentServing(ctx context.Context, department string) (*models.QueueEntry, error)

	// ListCompletedBetween returns one department's completed entries with
	// finished_at in [from, to), for the day archive export.
	ListCompletedBetween(ctx context.Context, department string, from, to time.Time) ([]*models.QueueEntry, error)

	// CounterValue reads the last allocated ticket number for a
	// (department, day) pair, 0 when no counter row exists. Used for
	// read-your-write checks after a timed-out allocation.
	CounterValue(ctx context.Context, department string, day time.Time) (int, error)
}
