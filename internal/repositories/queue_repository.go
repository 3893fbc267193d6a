package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"medisync-backend/internal/models"
)

const entryColumns = `id, patient_id, department, ticket_number, status,
	estimated_wait_seconds, snapshot_total, created_at, updated_at, finished_at`

// QueueRepository is the PostgreSQL QueueStore. The daily counter is
// bumped with a single upsert-increment statement so the row lock covers
// exactly one (department, date) key, and queue transitions run inside a
// transaction with row locks on the affected department only.
type QueueRepository struct {
	DB *pgxpool.Pool

	retries int
	backoff time.Duration
}

func NewQueueRepository(db *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{DB: db, retries: 3, backoff: 50 * time.Millisecond}
}

// SetRetryPolicy overrides the bounded retry applied to transient
// serialization and deadlock failures.
func (r *QueueRepository) SetRetryPolicy(retries int, backoff time.Duration) {
	if retries > 0 {
		r.retries = retries
	}
	if backoff > 0 {
		r.backoff = backoff
	}
}

// isTransientConflict reports whether an error is a serialization failure
// or deadlock that a fresh transaction may resolve.
func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// isUniqueViolation reports whether err is a unique violation on the named
// index or constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// withRetry runs fn in a transaction, retrying transient conflicts with a
// linear backoff. Exhaustion surfaces the last error to the caller, which
// the service layer reports as a store failure.
func (r *QueueRepository) withRetry(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}

		tx, err := r.DB.Begin(ctx)
		if err != nil {
			return err
		}

		if err := fn(tx); err != nil {
			tx.Rollback(ctx)
			if isTransientConflict(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if isTransientConflict(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("conflict retries exhausted: %w", lastErr)
}

func (r *QueueRepository) FindActive(ctx context.Context, patientID int64, department string) (*models.QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM queue_entries
		WHERE patient_id = $1 AND department = $2
		  AND status IN ('waiting', 'in_progress')
		LIMIT 1
	`, entryColumns)

	entry, err := scanEntry(r.DB.QueryRow(ctx, query, patientID, department))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return entry, err
}

func (r *QueueRepository) Join(ctx context.Context, p JoinParams) (*models.QueueEntry, error) {
	var entry *models.QueueEntry

	err := r.withRetry(ctx, func(tx pgx.Tx) error {
		// Upsert-increment holds the row lock for exactly one
		// (department, date) key; concurrent callers serialize here and
		// each observes a distinct post-increment value.
		var ticket int
		err := tx.QueryRow(ctx, `
			INSERT INTO daily_sequence_counters (department, date, current_value)
			VALUES ($1, $2, 1)
			ON CONFLICT (department, date)
			DO UPDATE SET current_value = daily_sequence_counters.current_value + 1
			RETURNING current_value
		`, p.Department, p.Day).Scan(&ticket)
		if err != nil {
			return fmt.Errorf("allocate ticket: %w", err)
		}

		var waiting int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM queue_entries
			WHERE department = $1 AND status = 'waiting'
		`, p.Department).Scan(&waiting)
		if err != nil {
			return fmt.Errorf("count waiting: %w", err)
		}

		estimate := models.EstimateWait(waiting, p.ServiceTime)

		row := tx.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO queue_entries
				(patient_id, department, ticket_number, status,
				 estimated_wait_seconds, snapshot_total)
			VALUES ($1, $2, $3, 'waiting', $4, $5)
			RETURNING %s
		`, entryColumns),
			p.PatientID, p.Department, ticket,
			int64(estimate.Seconds()), waiting,
		)
		entry, err = scanEntry(row)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return nil
	})
	if err != nil {
		// The partial unique index on (patient_id, department) rejects a
		// second active entry; the whole transaction rolls back, so the
		// counter increment is undone and the sequence stays gap-free.
		if isUniqueViolation(err, "idx_queue_entries_patient_active") {
			return nil, models.ErrAlreadyQueued
		}
		return nil, err
	}
	return entry, nil
}

func (r *QueueRepository) Advance(ctx context.Context, department string, now time.Time) (*AdvanceResult, error) {
	result := &AdvanceResult{}

	err := r.withRetry(ctx, func(tx pgx.Tx) error {
		result.Completed = nil
		result.Serving = nil

		// Department-scoped advisory lock. Two concurrent advances must not
		// both promote: under read committed the second transaction cannot
		// see the first one's uncommitted promotion, so without this lock it
		// would complete nothing and promote a second entry. The lock is
		// released at commit or rollback.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, department); err != nil {
			return fmt.Errorf("acquire advance lock: %w", err)
		}

		// Normally at most one row matches, but tolerate any number.
		rows, err := tx.Query(ctx, fmt.Sprintf(`
			UPDATE queue_entries
			SET status = 'completed', finished_at = $2, updated_at = $2
			WHERE department = $1 AND status = 'in_progress'
			RETURNING %s
		`, entryColumns), department, now)
		if err != nil {
			return fmt.Errorf("complete in_progress: %w", err)
		}
		result.Completed, err = collectEntries(rows)
		if err != nil {
			return err
		}

		// Oldest waiting entry; ticket number breaks creation-time ties.
		// Advances are already serialized by the advisory lock, so the row
		// lock only fences concurrent cancels.
		row := tx.QueryRow(ctx, fmt.Sprintf(`
			SELECT %s FROM queue_entries
			WHERE department = $1 AND status = 'waiting'
			ORDER BY created_at ASC, ticket_number ASC
			FOR UPDATE
			LIMIT 1
		`, entryColumns), department)

		next, err := scanEntry(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // empty queue, not an error
		}
		if err != nil {
			return fmt.Errorf("select next waiting: %w", err)
		}

		row = tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE queue_entries
			SET status = 'in_progress', updated_at = $2
			WHERE id = $1
			RETURNING %s
		`, entryColumns), next.ID, now)
		result.Serving, err = scanEntry(row)
		if err != nil {
			return fmt.Errorf("promote entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *QueueRepository) CancelActive(ctx context.Context, patientID int64, department string) (*models.QueueEntry, error) {
	// The outer status filter re-checks after the row lock: a concurrent
	// advance may have completed the entry between the subquery and the
	// update, and completed is terminal.
	row := r.DB.QueryRow(ctx, fmt.Sprintf(`
		UPDATE queue_entries
		SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE patient_id = $1 AND department = $2
			  AND status IN ('waiting', 'in_progress')
			LIMIT 1
		)
		  AND status IN ('waiting', 'in_progress')
		RETURNING %s
	`, entryColumns), patientID, department)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNoActiveEntry
	}
	return entry, err
}

func (r *QueueRepository) ListByStatus(ctx context.Context, department, status string) ([]*models.QueueEntry, error) {
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM queue_entries
		WHERE department = $1 AND status = $2
		ORDER BY created_at ASC, ticket_number ASC
	`, entryColumns), department, status)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *QueueRepository) CountByStatus(ctx context.Context, department, status string) (int, error) {
	var count int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE department = $1 AND status = $2
	`, department, status).Scan(&count)
	return count, err
}

func (r *QueueRepository) CompletedSince(ctx context.Context, department string, since time.Time) (int, error) {
	var count int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE department = $1 AND status = 'completed' AND finished_at >= $2
	`, department, since).Scan(&count)
	return count, err
}

func (r *QueueRepository) CurrentServing(ctx context.Context, department string) (*models.QueueEntry, error) {
	row := r.DB.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM queue_entries
		WHERE department = $1 AND status = 'in_progress'
		ORDER BY updated_at DESC
		LIMIT 1
	`, entryColumns), department)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return entry, err
}

func (r *QueueRepository) ListCompletedBetween(ctx context.Context, department string, from, to time.Time) ([]*models.QueueEntry, error) {
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM queue_entries
		WHERE department = $1 AND status = 'completed'
		  AND finished_at >= $2 AND finished_at < $3
		ORDER BY ticket_number ASC
	`, entryColumns), department, from, to)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *QueueRepository) CounterValue(ctx context.Context, department string, day time.Time) (int, error) {
	var value int
	err := r.DB.QueryRow(ctx, `
		SELECT current_value FROM daily_sequence_counters
		WHERE department = $1 AND date = $2
	`, department, day).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return value, err
}

func scanEntry(row pgx.Row) (*models.QueueEntry, error) {
	e := &models.QueueEntry{}
	var estSeconds int64
	err := row.Scan(
		&e.ID, &e.PatientID, &e.Department, &e.TicketNumber, &e.Status,
		&estSeconds, &e.SnapshotTotal, &e.CreatedAt, &e.UpdatedAt, &e.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	e.EstimatedWait = time.Duration(estSeconds) * time.Second
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]*models.QueueEntry, error) {
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e := &models.QueueEntry{}
		var estSeconds int64
		if err := rows.Scan(
			&e.ID, &e.PatientID, &e.Department, &e.TicketNumber, &e.Status,
			&estSeconds, &e.SnapshotTotal, &e.CreatedAt, &e.UpdatedAt, &e.FinishedAt,
		); err != nil {
			return nil, err
		}
		e.EstimatedWait = time.Duration(estSeconds) * time.Second
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
