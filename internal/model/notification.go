package model

import (
	"time"

	"gorm.io/gorm"
)

// Notification is the persisted copy of a dispatched alert. A nil RecipientRole is a
// broadcast.
type Notification struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Type           Priority   `gorm:"size:16;not null" json:"type"`
	Event          string     `gorm:"size:64;not null" json:"event"`
	Title          string     `gorm:"not null" json:"title"`
	Message        string     `gorm:"not null" json:"message"`
	RecipientRole  *Role      `gorm:"size:32;index" json:"recipient_role,omitempty"`
	PatientID      *string    `gorm:"size:36;index" json:"patient_id,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	newID(&n.ID)
	return nil
}
