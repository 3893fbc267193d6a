package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medisync-backend/internal/models"
)

// PatientDirectory resolves caller identity to a patient profile. Profile
// storage and registration live in the users service; this is a read-only
// lookup surface.
type PatientDirectory interface {
	Resolve(ctx context.Context, patientID int64) (*models.PatientProfile, error)
}

type PatientRepository struct {
	DB *pgxpool.Pool
}

func NewPatientRepository(db *pgxpool.Pool) *PatientRepository {
	return &PatientRepository{DB: db}
}

func (r *PatientRepository) Resolve(ctx context.Context, patientID int64) (*models.PatientProfile, error) {
	query := `
		SELECT id, full_name, blood_type, medical_condition, hospital, created_at
		FROM patient_profiles
		WHERE id = $1
	`
	p := &models.PatientProfile{}
	err := r.DB.QueryRow(ctx, query, patientID).Scan(
		&p.ID, &p.FullName, &p.BloodType, &p.MedicalCondition, &p.Hospital, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
