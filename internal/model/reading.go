package model

import (
	"time"

	"gorm.io/gorm"
)

// BloodPressureReading is an append-only measurement.
type BloodPressureReading struct {
	ID                    string    `gorm:"primaryKey;size:36" json:"id"`
	PatientID             string    `gorm:"size:36;not null;index:idx_bp_readings_patient_ts,priority:1" json:"patient_id"`
	Systolic              int       `gorm:"not null" json:"systolic"`
	Diastolic             int       `gorm:"not null" json:"diastolic"`
	Timestamp             time.Time `gorm:"not null;index:idx_bp_readings_patient_ts,priority:2,sort:desc" json:"timestamp"`
	RecordedBy            string    `gorm:"not null" json:"recorded_by"`
	IsPositionedCorrectly bool      `gorm:"not null;default:true" json:"is_positioned_correctly"`
	Notes                 *string   `json:"notes,omitempty"`
}

// TableName pins the table name used by the change feed.
func (BloodPressureReading) TableName() string {
	return "bp_readings"
}

func (r *BloodPressureReading) BeforeCreate(*gorm.DB) error {
	newID(&r.ID)
	return nil
}
