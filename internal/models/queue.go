package models

import (
	"encoding/json"
	"time"
)

// Queue entry statuses. An entry is created as waiting, promoted to
// in_progress by the advance operation, then completed. Cancelled is a
// terminal escape hatch from either active state.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ActiveStatuses are the states in which a patient counts as "in the queue".
// A patient may hold at most one entry per department in these states.
var ActiveStatuses = []string{StatusWaiting, StatusInProgress}

// IsActive reports whether status is one of ActiveStatuses.
func IsActive(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ValidTransition reports whether a status change is allowed by the queue
// state machine. waiting never jumps straight to completed.
func ValidTransition(from, to string) bool {
	switch from {
	case StatusWaiting:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// QueueEntry is one patient's position in a department queue.
// TicketNumber is assigned once at creation from the daily counter and is
// immutable. EstimatedWait and SnapshotTotal are advisory values captured
// at join time and never re-validated.
type QueueEntry struct {
	ID            int64         `json:"id"`
	PatientID     int64         `json:"patient_id"`
	Department    string        `json:"department"`
	TicketNumber  int           `json:"queue_number"`
	Status        string        `json:"status"`
	EstimatedWait time.Duration `json:"-"`
	SnapshotTotal int           `json:"total_patients"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// MarshalJSON reports the wait estimate in whole seconds instead of the
// raw nanosecond Duration value.
func (e *QueueEntry) MarshalJSON() ([]byte, error) {
	type alias QueueEntry
	return json.Marshal(struct {
		*alias
		EstimatedWaitSeconds int64 `json:"estimated_wait_seconds"`
	}{
		alias:                (*alias)(e),
		EstimatedWaitSeconds: int64(e.EstimatedWait.Seconds()),
	})
}

// DailyCounter is the per-(department, service day) ticket sequence row.
// CurrentValue is the last assigned ticket number for that day.
type DailyCounter struct {
	Department   string    `json:"department"`
	Date         time.Time `json:"date"`
	CurrentValue int       `json:"current_value"`
}

// EstimateWait computes the advisory wait estimate for a patient joining
// behind waitingCount others. Deliberately a coarse linear model: queue
// depth times a fixed configured per-patient service time.
func EstimateWait(waitingCount int, serviceTime time.Duration) time.Duration {
	if waitingCount < 0 {
		return 0
	}
	return time.Duration(waitingCount) * serviceTime
}

// JoinQueueRequest is the body of POST /api/queue/join. PatientID is
// optional; staff can join on behalf of a patient, otherwise the caller's
// own identity from the token is used.
type JoinQueueRequest struct {
	Department string `json:"department"`
	PatientID  int64  `json:"patient_id,omitempty"`
}

// AdvanceQueueRequest is the body of POST /api/queue/advance.
type AdvanceQueueRequest struct {
	Department string `json:"department"`
}

// AdvanceQueueResponse reports the outcome of an advance call. Success is
// false when nothing was waiting; that is a normal result, not an error.
type AdvanceQueueResponse struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	CurrentServing int             `json:"current_serving,omitempty"`
	Department     string          `json:"department,omitempty"`
	PatientProfile *PatientProfile `json:"patient_profile,omitempty"`
}

// QueueStats is the department dashboard summary.
type QueueStats struct {
	Department     string `json:"department"`
	Waiting        int    `json:"waiting"`
	InProgress     int    `json:"in_progress"`
	CompletedToday int    `json:"completed_today"`
	CurrentServing int    `json:"current_serving"`
}
