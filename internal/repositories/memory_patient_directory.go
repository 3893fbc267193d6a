package repositories

import (
	"context"
	"sync"

	"medisync-backend/internal/models"
)

// MemoryPatientDirectory is the in-memory PatientDirectory for unit tests.
type MemoryPatientDirectory struct {
	mu       sync.RWMutex
	profiles map[int64]*models.PatientProfile

	ResolveErr error
}

func NewMemoryPatientDirectory() *MemoryPatientDirectory {
	return &MemoryPatientDirectory{profiles: make(map[int64]*models.PatientProfile)}
}

// Add registers a profile for lookup.
func (d *MemoryPatientDirectory) Add(p *models.PatientProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *p
	d.profiles[p.ID] = &clone
}

func (d *MemoryPatientDirectory) Resolve(_ context.Context, patientID int64) (*models.PatientProfile, error) {
	if d.ResolveErr != nil {
		return nil, d.ResolveErr
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[patientID]
	if !ok {
		return nil, models.ErrPatientNotFound
	}
	clone := *p
	return &clone, nil
}
