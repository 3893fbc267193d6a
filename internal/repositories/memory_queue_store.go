package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medisync-backend/internal/models"
)

// MemoryQueueStore is a hand-written, in-memory QueueStore used in unit
// tests. No mock-generation library needed. It mirrors the locking shape
// of the PostgreSQL store: one mutex per department so that operations on
// different departments never serialize against each other.
type MemoryQueueStore struct {
	mu        sync.Mutex
	entries   map[int64]*models.QueueEntry
	counters  map[string]int
	deptLocks map[string]*sync.Mutex
	nextID    int64

	// NowFunc lets tests pin the clock. Defaults to time.Now.
	NowFunc func() time.Time

	// Optional error overrides — set in tests to simulate failure paths.
	JoinErr    error
	AdvanceErr error
	FindErr    error
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{
		entries:   make(map[int64]*models.QueueEntry),
		counters:  make(map[string]int),
		deptLocks: make(map[string]*sync.Mutex),
		NowFunc:   time.Now,
	}
}

func (s *MemoryQueueStore) now() time.Time {
	return s.NowFunc()
}

// deptLock returns the mutex scoped to one department, creating it on
// first use.
func (s *MemoryQueueStore) deptLock(department string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.deptLocks[department]
	if !ok {
		l = &sync.Mutex{}
		s.deptLocks[department] = l
	}
	return l
}

func counterKey(department string, day time.Time) string {
	return fmt.Sprintf("%s|%s", department, day.Format("2006-01-02"))
}

func (s *MemoryQueueStore) FindActive(_ context.Context, patientID int64, department string) (*models.QueueEntry, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.PatientID == patientID && e.Department == department && models.IsActive(e.Status) {
			clone := *e
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryQueueStore) Join(_ context.Context, p JoinParams) (*models.QueueEntry, error) {
	if s.JoinErr != nil {
		return nil, s.JoinErr
	}

	lock := s.deptLock(p.Department)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Same guarantee as the partial unique index in PostgreSQL: a second
	// active entry for the same (patient, department) never lands.
	for _, e := range s.entries {
		if e.PatientID == p.PatientID && e.Department == p.Department && models.IsActive(e.Status) {
			return nil, models.ErrAlreadyQueued
		}
	}

	key := counterKey(p.Department, p.Day)
	s.counters[key]++
	ticket := s.counters[key]

	waiting := 0
	for _, e := range s.entries {
		if e.Department == p.Department && e.Status == models.StatusWaiting {
			waiting++
		}
	}

	s.nextID++
	now := s.now()
	entry := &models.QueueEntry{
		ID:            s.nextID,
		PatientID:     p.PatientID,
		Department:    p.Department,
		TicketNumber:  ticket,
		Status:        models.StatusWaiting,
		EstimatedWait: models.EstimateWait(waiting, p.ServiceTime),
		SnapshotTotal: waiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.entries[entry.ID] = entry

	clone := *entry
	return &clone, nil
}

func (s *MemoryQueueStore) Advance(_ context.Context, department string, now time.Time) (*AdvanceResult, error) {
	if s.AdvanceErr != nil {
		return nil, s.AdvanceErr
	}

	lock := s.deptLock(department)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &AdvanceResult{}

	for _, e := range s.entries {
		if e.Department == department && e.Status == models.StatusInProgress {
			finished := now
			e.Status = models.StatusCompleted
			e.FinishedAt = &finished
			e.UpdatedAt = now
			clone := *e
			result.Completed = append(result.Completed, &clone)
		}
	}

	var next *models.QueueEntry
	for _, e := range s.entries {
		if e.Department != department || e.Status != models.StatusWaiting {
			continue
		}
		if next == nil || olderThan(e, next) {
			next = e
		}
	}
	if next != nil {
		next.Status = models.StatusInProgress
		next.UpdatedAt = now
		clone := *next
		result.Serving = &clone
	}
	return result, nil
}

// olderThan orders entries by creation time, ticket number as tie-break.
func olderThan(a, b *models.QueueEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.TicketNumber < b.TicketNumber
}

func (s *MemoryQueueStore) CancelActive(_ context.Context, patientID int64, department string) (*models.QueueEntry, error) {
	lock := s.deptLock(department)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.PatientID == patientID && e.Department == department &&
			models.ValidTransition(e.Status, models.StatusCancelled) {
			e.Status = models.StatusCancelled
			e.UpdatedAt = s.now()
			clone := *e
			return &clone, nil
		}
	}
	return nil, models.ErrNoActiveEntry
}

func (s *MemoryQueueStore) ListByStatus(_ context.Context, department, status string) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if e.Department == department && e.Status == status {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return olderThan(out[i], out[j]) })
	return out, nil
}

func (s *MemoryQueueStore) CountByStatus(_ context.Context, department, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.entries {
		if e.Department == department && e.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryQueueStore) CompletedSince(_ context.Context, department string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.entries {
		if e.Department == department && e.Status == models.StatusCompleted &&
			e.FinishedAt != nil && !e.FinishedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryQueueStore) CurrentServing(_ context.Context, department string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Department == department && e.Status == models.StatusInProgress {
			clone := *e
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryQueueStore) ListCompletedBetween(_ context.Context, department string, from, to time.Time) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if e.Department == department && e.Status == models.StatusCompleted &&
			e.FinishedAt != nil && !e.FinishedAt.Before(from) && e.FinishedAt.Before(to) {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (s *MemoryQueueStore) CounterValue(_ context.Context, department string, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counterKey(department, day)], nil
}
