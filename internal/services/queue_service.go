package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"medisync-backend/internal/broadcast"
	"medisync-backend/internal/metrics"
	"medisync-backend/internal/models"
	"medisync-backend/internal/repositories"
	"medisync-backend/internal/timeutil"
)

// QueueService composes the ticket allocator, queue store, wait estimator
// and event broadcaster into the two externally visible operations:
// JoinQueue and AdvanceQueue. It owns the lifecycle of queue entries and
// daily counters; nothing else mutates them.
type QueueService struct {
	Store       repositories.QueueStore
	Patients    repositories.PatientDirectory
	Broadcaster *broadcast.Broadcaster

	// Notifications is optional; when set, advancing the queue records a
	// best-effort notification row for the patient being called.
	Notifications repositories.NotificationStore

	// ServiceTime is the per-patient duration behind the wait estimate.
	ServiceTime time.Duration

	// NowFunc lets tests pin the clock; defaults to timeutil.Now.
	NowFunc func() time.Time
}

func NewQueueService(store repositories.QueueStore, patients repositories.PatientDirectory, b *broadcast.Broadcaster, serviceTime time.Duration) *QueueService {
	if serviceTime <= 0 {
		serviceTime = 15 * time.Minute
	}
	return &QueueService{
		Store:       store,
		Patients:    patients,
		Broadcaster: b,
		ServiceTime: serviceTime,
		NowFunc:     timeutil.Now,
	}
}

// SetNotificationStore wires the optional notification persistence.
func (s *QueueService) SetNotificationStore(store repositories.NotificationStore) {
	s.Notifications = store
}

func (s *QueueService) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return timeutil.Now()
}

// storeErr wraps persistence failures so handlers report a retryable
// server-side failure. Join and Advance are atomic in the store, so a
// retried call can never half-apply.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

// JoinQueue admits a patient to a department queue. Re-joining while an
// entry is still waiting or in_progress returns that entry unchanged;
// existing is true in that case. Otherwise the next daily ticket number is
// allocated and a waiting entry persisted in one atomic unit.
func (s *QueueService) JoinQueue(ctx context.Context, patientID int64, department string) (entry *models.QueueEntry, existing bool, err error) {
	if department == "" {
		return nil, false, models.ErrInvalidDepartment
	}

	if _, err := s.Patients.Resolve(ctx, patientID); err != nil {
		if errors.Is(err, models.ErrPatientNotFound) {
			return nil, false, err
		}
		return nil, false, storeErr(err)
	}

	// De-duplication: one active entry per (patient, department).
	active, err := s.Store.FindActive(ctx, patientID, department)
	if err == nil {
		return active, true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, storeErr(err)
	}

	now := s.now()
	entry, err = s.Store.Join(ctx, repositories.JoinParams{
		PatientID:   patientID,
		Department:  department,
		Day:         timeutil.ServiceDay(now),
		ServiceTime: s.ServiceTime,
	})
	if errors.Is(err, models.ErrAlreadyQueued) {
		// Lost a race against a concurrent join by the same patient; the
		// store rejected the second insert. Return the entry that won.
		active, ferr := s.Store.FindActive(ctx, patientID, department)
		if ferr != nil {
			return nil, false, storeErr(ferr)
		}
		return active, true, nil
	}
	if err != nil {
		return nil, false, storeErr(err)
	}

	metrics.TicketsIssued.WithLabelValues(department).Inc()
	metrics.QueueDepth.WithLabelValues(department).Set(float64(entry.SnapshotTotal + 1))

	s.publish(department, broadcast.Event{
		Type:         broadcast.PositionUpdate,
		TicketNumber: entry.TicketNumber,
		Status:       entry.Status,
		PatientID:    entry.PatientID,
		IsOpen:       true,
	})

	log.Printf("[Queue] patient %d joined %s with ticket %d", patientID, department, entry.TicketNumber)
	return entry, false, nil
}

// AdvanceQueue completes whatever is in_progress in the department and
// promotes the oldest waiting entry. An empty queue is a normal result,
// not an error, and changes no state.
func (s *QueueService) AdvanceQueue(ctx context.Context, department string) (*models.AdvanceQueueResponse, error) {
	if department == "" {
		return nil, models.ErrInvalidDepartment
	}

	now := s.now()
	result, err := s.Store.Advance(ctx, department, now)
	if err != nil {
		return nil, storeErr(err)
	}

	if result.Serving == nil {
		metrics.QueueAdvances.WithLabelValues(department, "empty").Inc()
		return &models.AdvanceQueueResponse{
			Success: false,
			Message: "Queue is empty",
		}, nil
	}

	metrics.QueueAdvances.WithLabelValues(department, "served").Inc()
	if waiting, err := s.Store.CountByStatus(ctx, department, models.StatusWaiting); err == nil {
		metrics.QueueDepth.WithLabelValues(department).Set(float64(waiting))
	}

	serving := result.Serving

	// Patient profile for the UI transfer; lookup failure degrades to a
	// response without the profile.
	var profile *models.PatientProfile
	if p, err := s.Patients.Resolve(ctx, serving.PatientID); err == nil {
		profile = p
	} else {
		log.Printf("[Queue] profile lookup for patient %d failed: %v", serving.PatientID, err)
	}

	s.notifyCalled(ctx, serving, now)

	ev := broadcast.Event{
		Type:         broadcast.StatusUpdate,
		TicketNumber: serving.TicketNumber,
		Status:       serving.Status,
		PatientID:    serving.PatientID,
	}
	if profile != nil {
		ev.PatientName = profile.FullName
	}
	s.publish(department, ev)

	log.Printf("[Queue] %s now serving ticket %d", department, serving.TicketNumber)
	return &models.AdvanceQueueResponse{
		Success:        true,
		Message:        fmt.Sprintf("Started processing patient #%d", serving.TicketNumber),
		CurrentServing: serving.TicketNumber,
		Department:     department,
		PatientProfile: profile,
	}, nil
}

// notifyCalled records a best-effort notification row for the patient now
// being served. Failures are logged and swallowed.
func (s *QueueService) notifyCalled(ctx context.Context, entry *models.QueueEntry, now time.Time) {
	if s.Notifications == nil {
		return
	}
	sent := now
	n := &models.Notification{
		PatientID:        entry.PatientID,
		Message:          fmt.Sprintf("It is your turn: ticket #%d in %s is now being served", entry.TicketNumber, entry.Department),
		Channel:          models.ChannelWebSocket,
		DeliveryStatus:   models.DeliverySent,
		SentAt:           &sent,
		DeliveryAttempts: 1,
	}
	if err := s.Notifications.Create(ctx, n); err != nil {
		log.Printf("[Queue] notification write failed for patient %d: %v", entry.PatientID, err)
	}
}

// CancelQueue moves the caller's active entry to cancelled.
func (s *QueueService) CancelQueue(ctx context.Context, patientID int64, department string) (*models.QueueEntry, error) {
	if department == "" {
		return nil, models.ErrInvalidDepartment
	}
	entry, err := s.Store.CancelActive(ctx, patientID, department)
	if err != nil {
		if errors.Is(err, models.ErrNoActiveEntry) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	if waiting, err := s.Store.CountByStatus(ctx, department, models.StatusWaiting); err == nil {
		metrics.QueueDepth.WithLabelValues(department).Set(float64(waiting))
	}
	s.publish(department, broadcast.Event{
		Type:         broadcast.PositionUpdate,
		TicketNumber: entry.TicketNumber,
		Status:       entry.Status,
		PatientID:    entry.PatientID,
	})
	return entry, nil
}

// WaitingList returns the department's waiting entries in service order.
func (s *QueueService) WaitingList(ctx context.Context, department string) ([]*models.QueueEntry, error) {
	if department == "" {
		return nil, models.ErrInvalidDepartment
	}
	entries, err := s.Store.ListByStatus(ctx, department, models.StatusWaiting)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// Stats assembles the department dashboard summary.
func (s *QueueService) Stats(ctx context.Context, department string) (*models.QueueStats, error) {
	if department == "" {
		return nil, models.ErrInvalidDepartment
	}

	stats := &models.QueueStats{Department: department}

	var err error
	if stats.Waiting, err = s.Store.CountByStatus(ctx, department, models.StatusWaiting); err != nil {
		return nil, storeErr(err)
	}
	if stats.InProgress, err = s.Store.CountByStatus(ctx, department, models.StatusInProgress); err != nil {
		return nil, storeErr(err)
	}
	if stats.CompletedToday, err = s.Store.CompletedSince(ctx, department, timeutil.StartOfDay(s.now())); err != nil {
		return nil, storeErr(err)
	}

	serving, err := s.Store.CurrentServing(ctx, department)
	if err == nil {
		stats.CurrentServing = serving.TicketNumber
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, storeErr(err)
	}
	return stats, nil
}

func (s *QueueService) publish(department string, ev broadcast.Event) {
	if s.Broadcaster == nil {
		return
	}
	metrics.EventsPublished.WithLabelValues(department, ev.Type).Inc()
	s.Broadcaster.Publish(department, ev)
}
