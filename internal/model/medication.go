package model

import (
	"time"

	"gorm.io/gorm"
)

// MedicationDose is an ordered dose of the selected algorithm. It is updated exactly
// once, when administered.
type MedicationDose struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"id"`
	PatientID          string     `gorm:"size:36;not null;index" json:"patient_id"`
	EmergencySessionID string     `gorm:"size:36;not null;index" json:"emergency_session_id"`
	MedicationName     string     `gorm:"not null" json:"medication_name"`
	Algorithm          string     `gorm:"not null" json:"algorithm"`
	Route              string     `gorm:"not null" json:"route"`
	DoseNumber         int        `gorm:"not null" json:"dose_number"`
	Dose               string     `gorm:"not null" json:"dose"`
	DoseAmount         float64    `json:"dose_amount"`
	Unit               string     `gorm:"not null;default:mg" json:"unit"`
	WaitMinutes        int        `gorm:"not null" json:"wait_minutes"`
	OrderedBy          string     `gorm:"not null" json:"ordered_by"`
	OrderedAt          time.Time  `gorm:"not null" json:"ordered_at"`
	AdministeredBy     *string    `json:"administered_by,omitempty"`
	AdministeredAt     *time.Time `json:"administered_at,omitempty"`
	NextBPCheckAt      *time.Time `json:"next_bp_check_at,omitempty"`
}

// TableName pins the table name used by the change feed.
func (MedicationDose) TableName() string {
	return "medications"
}

func (m *MedicationDose) BeforeCreate(*gorm.DB) error {
	newID(&m.ID)
	return nil
}

// Administered reports whether the dose has been given.
func (m *MedicationDose) Administered() bool {
	return m.AdministeredAt != nil
}
