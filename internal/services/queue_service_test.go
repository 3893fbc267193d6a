package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"medisync-backend/internal/broadcast"
	"medisync-backend/internal/models"
	"medisync-backend/internal/repositories"
	"medisync-backend/internal/services"
	"medisync-backend/internal/timeutil"
)

func newService(t *testing.T) (*services.QueueService, *repositories.MemoryQueueStore, *repositories.MemoryPatientDirectory) {
	t.Helper()
	store := repositories.NewMemoryQueueStore()
	patients := repositories.NewMemoryPatientDirectory()
	for i := int64(1); i <= 10; i++ {
		patients.Add(&models.PatientProfile{
			ID:       i,
			FullName: fmt.Sprintf("Patient %d", i),
			Hospital: "MediSync General",
		})
	}
	svc := services.NewQueueService(store, patients, broadcast.New(16), 15*time.Minute)
	return svc, store, patients
}

func TestJoinQueueAssignsFirstTicket(t *testing.T) {
	svc, _, _ := newService(t)

	entry, existing, err := svc.JoinQueue(context.Background(), 1, "OPD")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if existing {
		t.Fatal("first join must not report an existing entry")
	}
	if entry.TicketNumber != 1 {
		t.Fatalf("ticket = %d, want 1", entry.TicketNumber)
	}
	if entry.Status != models.StatusWaiting {
		t.Fatalf("status = %s, want waiting", entry.Status)
	}
	if entry.EstimatedWait != 0 {
		t.Fatalf("first patient's estimate = %v, want 0", entry.EstimatedWait)
	}
}

func TestJoinQueueIsIdempotentWhileActive(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	first, _, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	second, existing, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if !existing {
		t.Fatal("re-join while waiting must report the existing entry")
	}
	if second.TicketNumber != first.TicketNumber || second.ID != first.ID {
		t.Fatalf("re-join returned a different entry: %+v vs %+v", second, first)
	}

	// Still idempotent once the patient is being served.
	if _, err := svc.AdvanceQueue(ctx, "OPD"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	third, existing, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil || !existing {
		t.Fatalf("re-join while in_progress: err=%v existing=%v", err, existing)
	}
	if third.TicketNumber != first.TicketNumber {
		t.Fatalf("in_progress re-join returned ticket %d, want %d", third.TicketNumber, first.TicketNumber)
	}
}

// staleReadStore reports the active-entry lookup as empty a configured
// number of times, standing in for a second join racing past the
// read-before-insert check.
type staleReadStore struct {
	*repositories.MemoryQueueStore
	misses int32
}

func (s *staleReadStore) FindActive(ctx context.Context, patientID int64, department string) (*models.QueueEntry, error) {
	if atomic.AddInt32(&s.misses, -1) >= 0 {
		return nil, models.ErrNotFound
	}
	return s.MemoryQueueStore.FindActive(ctx, patientID, department)
}

func TestJoinQueueRaceStillAdmitsOnlyOneEntry(t *testing.T) {
	store := &staleReadStore{MemoryQueueStore: repositories.NewMemoryQueueStore()}
	patients := repositories.NewMemoryPatientDirectory()
	patients.Add(&models.PatientProfile{ID: 1, FullName: "Asha Rao"})
	svc := services.NewQueueService(store, patients, broadcast.New(4), 15*time.Minute)
	ctx := context.Background()

	first, _, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	// The next join does not see the first entry in its pre-check; the
	// store's uniqueness guarantee must still hold and the existing entry
	// must come back.
	atomic.StoreInt32(&store.misses, 1)
	second, existing, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("racing join: %v", err)
	}
	if !existing {
		t.Fatal("racing join must report the existing entry")
	}
	if second.ID != first.ID || second.TicketNumber != first.TicketNumber {
		t.Fatalf("racing join returned a different entry: %+v vs %+v", second, first)
	}

	waiting, _ := store.CountByStatus(ctx, "OPD", models.StatusWaiting)
	if waiting != 1 {
		t.Fatalf("patient holds %d waiting entries, want 1", waiting)
	}
}

func TestJoinQueueAfterCompletionGetsFreshTicket(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	svc.JoinQueue(ctx, 1, "OPD")
	svc.AdvanceQueue(ctx, "OPD") // serve patient 1
	svc.AdvanceQueue(ctx, "OPD") // complete patient 1

	entry, existing, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if existing {
		t.Fatal("a completed entry must not block a fresh join")
	}
	if entry.TicketNumber != 2 {
		t.Fatalf("fresh ticket = %d, want 2", entry.TicketNumber)
	}
}

func TestJoinQueueValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.JoinQueue(ctx, 1, ""); !errors.Is(err, models.ErrInvalidDepartment) {
		t.Fatalf("blank department: got %v, want ErrInvalidDepartment", err)
	}
	if _, _, err := svc.JoinQueue(ctx, 999, "OPD"); !errors.Is(err, models.ErrPatientNotFound) {
		t.Fatalf("unknown patient: got %v, want ErrPatientNotFound", err)
	}
}

func TestJoinQueueWrapsStoreFailures(t *testing.T) {
	svc, store, _ := newService(t)
	store.JoinErr = errors.New("connection reset")

	_, _, err := svc.JoinQueue(context.Background(), 1, "OPD")
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
}

// Three patients join OPD back to back: estimates are 0, 15 and 30
// minutes, and service proceeds in ticket order.
func TestOutpatientMorningScenario(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, timeutil.IST)
	clock := base
	store.NowFunc = func() time.Time { return clock }
	svc.NowFunc = func() time.Time { return clock }

	wantEstimates := []time.Duration{0, 15 * time.Minute, 30 * time.Minute}
	for i := int64(1); i <= 3; i++ {
		clock = clock.Add(time.Minute)
		entry, _, err := svc.JoinQueue(ctx, i, "OPD")
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		if entry.TicketNumber != int(i) {
			t.Fatalf("patient %d got ticket %d", i, entry.TicketNumber)
		}
		if entry.EstimatedWait != wantEstimates[i-1] {
			t.Fatalf("patient %d estimate = %v, want %v", i, entry.EstimatedWait, wantEstimates[i-1])
		}
	}

	for want := 1; want <= 3; want++ {
		resp, err := svc.AdvanceQueue(ctx, "OPD")
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if !resp.Success {
			t.Fatalf("advance %d: %s", want, resp.Message)
		}
		if resp.CurrentServing != want {
			t.Fatalf("advance %d: serving %d", want, resp.CurrentServing)
		}
		if resp.PatientProfile == nil || resp.PatientProfile.ID != int64(want) {
			t.Fatalf("advance %d: profile %+v", want, resp.PatientProfile)
		}
	}

	// Fourth advance drains the queue.
	resp, err := svc.AdvanceQueue(ctx, "OPD")
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if resp.Success {
		t.Fatal("advance on an empty queue must report success=false")
	}
}

func TestAdvanceOnEmptyQueueChangesNothing(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := svc.AdvanceQueue(ctx, "OPD")
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if resp.Success {
			t.Fatal("expected success=false on empty queue")
		}
	}

	value, _ := store.CounterValue(ctx, "OPD", timeutil.ServiceDay(time.Now()))
	if value != 0 {
		t.Fatalf("counter moved on empty advance: %d", value)
	}
}

func TestAdvanceRecordsNotification(t *testing.T) {
	svc, _, _ := newService(t)
	notifications := repositories.NewMemoryNotificationStore()
	svc.SetNotificationStore(notifications)
	ctx := context.Background()

	svc.JoinQueue(ctx, 1, "OPD")
	if _, err := svc.AdvanceQueue(ctx, "OPD"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	rows, _ := notifications.ListByPatient(ctx, 1, 10)
	if len(rows) != 1 {
		t.Fatalf("expected one notification, got %d", len(rows))
	}
	if rows[0].Channel != models.ChannelWebSocket || rows[0].DeliveryStatus != models.DeliverySent {
		t.Fatalf("unexpected notification: %+v", rows[0])
	}
}

func TestAdvanceSucceedsWhenNotificationWriteFails(t *testing.T) {
	svc, _, _ := newService(t)
	notifications := repositories.NewMemoryNotificationStore()
	notifications.CreateErr = errors.New("disk full")
	svc.SetNotificationStore(notifications)
	ctx := context.Background()

	svc.JoinQueue(ctx, 1, "OPD")
	resp, err := svc.AdvanceQueue(ctx, "OPD")
	if err != nil || !resp.Success {
		t.Fatalf("notification failure must not fail the advance: err=%v resp=%+v", err, resp)
	}
}

func TestDepartmentsAdvanceIndependently(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	svc.JoinQueue(ctx, 1, "OPD")
	svc.JoinQueue(ctx, 2, "Cardiology")

	resp, err := svc.AdvanceQueue(ctx, "OPD")
	if err != nil || !resp.Success {
		t.Fatalf("OPD advance: err=%v resp=%+v", err, resp)
	}

	// Cardiology's patient is untouched by OPD's advance.
	stats, err := svc.Stats(ctx, "Cardiology")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Waiting != 1 || stats.InProgress != 0 {
		t.Fatalf("Cardiology stats = %+v", stats)
	}
}

func TestCancelQueue(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	svc.JoinQueue(ctx, 1, "OPD")
	svc.JoinQueue(ctx, 2, "OPD")

	entry, err := svc.CancelQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if entry.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", entry.Status)
	}

	// Patient 2 is now the head of the queue.
	resp, _ := svc.AdvanceQueue(ctx, "OPD")
	if resp.CurrentServing != 2 {
		t.Fatalf("serving %d after cancel, want 2", resp.CurrentServing)
	}

	if _, err := svc.CancelQueue(ctx, 3, "OPD"); !errors.Is(err, models.ErrNoActiveEntry) {
		t.Fatalf("cancel without entry: got %v, want ErrNoActiveEntry", err)
	}
}

func TestDayRolloverRestartsTickets(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 23, 50, 0, 0, timeutil.IST)
	clock := day1
	store.NowFunc = func() time.Time { return clock }
	svc.NowFunc = func() time.Time { return clock }

	first, _, err := svc.JoinQueue(ctx, 1, "OPD")
	if err != nil {
		t.Fatalf("join day 1: %v", err)
	}

	// The waiting entry survives midnight; only the ticket sequence resets.
	clock = clock.Add(20 * time.Minute) // 00:10 next day
	second, _, err := svc.JoinQueue(ctx, 2, "OPD")
	if err != nil {
		t.Fatalf("join day 2: %v", err)
	}

	if first.TicketNumber != 1 || second.TicketNumber != 1 {
		t.Fatalf("tickets across rollover = %d, %d; want 1, 1", first.TicketNumber, second.TicketNumber)
	}

	// FIFO is by creation time, so yesterday's patient is served first
	// even though both hold ticket 1.
	resp, _ := svc.AdvanceQueue(ctx, "OPD")
	if !resp.Success || resp.PatientProfile.ID != 1 {
		t.Fatalf("expected day-1 patient served first, got %+v", resp)
	}
}

func TestStats(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	now := timeutil.Now()
	clock := now
	store.NowFunc = func() time.Time { return clock }
	svc.NowFunc = func() time.Time { return clock }

	svc.JoinQueue(ctx, 1, "OPD")
	svc.JoinQueue(ctx, 2, "OPD")
	svc.JoinQueue(ctx, 3, "OPD")
	svc.AdvanceQueue(ctx, "OPD") // ticket 1 in_progress
	svc.AdvanceQueue(ctx, "OPD") // ticket 1 done, ticket 2 in_progress

	stats, err := svc.Stats(ctx, "OPD")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Waiting != 1 || stats.InProgress != 1 || stats.CompletedToday != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.CurrentServing != 2 {
		t.Fatalf("current serving = %d, want 2", stats.CurrentServing)
	}
}

func TestJoinPublishesEventToSubscribers(t *testing.T) {
	store := repositories.NewMemoryQueueStore()
	patients := repositories.NewMemoryPatientDirectory()
	patients.Add(&models.PatientProfile{ID: 1, FullName: "Asha Rao"})
	b := broadcast.New(4)
	svc := services.NewQueueService(store, patients, b, 15*time.Minute)

	events, cancel := b.Subscribe("OPD")
	defer cancel()

	svc.JoinQueue(context.Background(), 1, "OPD")

	select {
	case ev := <-events:
		if ev.Type != broadcast.PositionUpdate || ev.TicketNumber != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published on join")
	}
}

func TestAdvancePublishesStatusUpdate(t *testing.T) {
	store := repositories.NewMemoryQueueStore()
	patients := repositories.NewMemoryPatientDirectory()
	patients.Add(&models.PatientProfile{ID: 1, FullName: "Asha Rao"})
	b := broadcast.New(4)
	svc := services.NewQueueService(store, patients, b, 15*time.Minute)
	ctx := context.Background()

	svc.JoinQueue(ctx, 1, "OPD")

	events, cancel := b.Subscribe("OPD")
	defer cancel()

	svc.AdvanceQueue(ctx, "OPD")

	select {
	case ev := <-events:
		if ev.Type != broadcast.StatusUpdate {
			t.Fatalf("event type = %s, want status_update", ev.Type)
		}
		if ev.Status != models.StatusInProgress || ev.PatientName != "Asha Rao" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published on advance")
	}
}
