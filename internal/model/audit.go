package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit action types.
const (
	ActionPatientRegistered       = "patient_registered"
	ActionBPReadingRecorded       = "bp_reading_recorded"
	ActionFirstHighBP             = "first_high_bp_observed"
	ActionHighWithinGap           = "high_bp_within_confirmation_gap"
	ActionEmergencyConfirmed      = "emergency_confirmed"
	ActionSessionStarted          = "session_started"
	ActionAlgorithmSelected       = "algorithm_selected"
	ActionMedicationOrdered       = "medication_ordered"
	ActionMedicationAdministered  = "medication_administered"
	ActionProtocolComplete        = "protocol_complete"
	ActionTimerSatisfied          = "timer_satisfied"
	ActionTimersCleared           = "observation_timers_cleared"
	ActionSessionResolved         = "session_resolved"
	ActionAutoResolved            = "bp_controlled_auto_resolved"
	ActionSessionEscalated        = "session_escalated"
	ActionSessionAcknowledged     = "session_acknowledged"
	ActionNotificationAcknowledge = "notification_acknowledged"
)

// AuditLog is an append-only record of a clinical action.
type AuditLog struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
	UserID     string         `gorm:"not null" json:"user_id"`
	ActionType string         `gorm:"size:64;not null;index" json:"action_type"`
	PatientID  string         `gorm:"size:36;index" json:"patient_id"`
	Details    datatypes.JSON `json:"details"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	newID(&a.ID)
	return nil
}

// NewAuditLog builds an entry with details marshalled to JSON.
func NewAuditLog(at time.Time, userID, action, patientID string, details map[string]any) AuditLog {
	raw, err := json.Marshal(details)
	if err != nil || details == nil {
		raw = []byte("{}")
	}
	return AuditLog{
		Timestamp:  at,
		UserID:     userID,
		ActionType: action,
		PatientID:  patientID,
		Details:    datatypes.JSON(raw),
	}
}
