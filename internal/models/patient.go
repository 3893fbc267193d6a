package models

import "time"

// PatientProfile is the slice of patient identity this service needs.
// Profile storage and registration belong to the users service; the queue
// backend only resolves and displays profiles.
type PatientProfile struct {
	ID               int64     `json:"id"`
	FullName         string    `json:"full_name"`
	BloodType        string    `json:"blood_type,omitempty"`
	MedicalCondition string    `json:"medical_condition,omitempty"`
	Hospital         string    `json:"hospital,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
