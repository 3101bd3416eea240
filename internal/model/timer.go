package model

import (
	"time"

	"gorm.io/gorm"
)

// TimerType identifies what a clinical deadline is for.
type TimerType string

const (
	TimerBPRecheck              TimerType = "bp_recheck"
	TimerMedicationWait         TimerType = "medication_wait"
	TimerAdministrationDeadline TimerType = "administration_deadline"
)

// Timer is a persisted deadline. Expiry is derived from ExpiresAt on read.
type Timer struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	PatientID       string    `gorm:"size:36;not null;index" json:"patient_id"`
	Type            TimerType `gorm:"size:32;not null" json:"type"`
	StartedAt       time.Time `gorm:"not null" json:"started_at"`
	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`
	ExpiresAt       time.Time `gorm:"not null" json:"expires_at"`
	IsActive        bool      `gorm:"not null;index" json:"is_active"`
}

func (t *Timer) BeforeCreate(*gorm.DB) error {
	newID(&t.ID)
	return nil
}

// Duration returns the configured length of the timer.
func (t *Timer) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}
