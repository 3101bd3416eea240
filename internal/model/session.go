package model

import (
	"time"

	"gorm.io/gorm"
)

// SessionStatus is the persisted status of an emergency session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionResolved  SessionStatus = "resolved"
	SessionEscalated SessionStatus = "escalated"
)

// EmergencySession is one hypertensive emergency case of a patient.
type EmergencySession struct {
	ID                string        `gorm:"primaryKey;size:36" json:"id"`
	PatientID         string        `gorm:"size:36;not null;index" json:"patient_id"`
	InitiatedBy       string        `gorm:"not null" json:"initiated_by"`
	InitiatedAt       time.Time     `gorm:"not null" json:"initiated_at"`
	AlgorithmSelected *string       `json:"algorithm_selected,omitempty"`
	CurrentStep       int           `gorm:"not null;default:0" json:"current_step"`
	Status            SessionStatus `gorm:"size:16;not null;index" json:"status"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
	EscalatedAt       *time.Time    `json:"escalated_at,omitempty"`
	AcknowledgedAt    *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    *string       `json:"acknowledged_by,omitempty"`
	Version           int           `gorm:"not null;default:1" json:"version"`
}

func (s *EmergencySession) BeforeCreate(*gorm.DB) error {
	newID(&s.ID)
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// Open reports whether the session still owns the patient (active or escalated).
func (s *EmergencySession) Open() bool {
	return s != nil && (s.Status == SessionActive || s.Status == SessionEscalated)
}

// Algorithm returns the selected algorithm name or an empty string.
func (s *EmergencySession) Algorithm() string {
	if s == nil || s.AlgorithmSelected == nil {
		return ""
	}
	return *s.AlgorithmSelected
}
