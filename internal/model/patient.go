package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Patient is a postpartum patient under observation.
type Patient struct {
	ID                        string  `gorm:"primaryKey;size:36" json:"id"`
	AnonymousIdentifier       string  `gorm:"uniqueIndex;not null" json:"anonymous_identifier"`
	RoomNumber                *string `json:"room_number,omitempty"`
	HasAsthma                 bool    `gorm:"not null;default:false" json:"has_asthma"`
	CurrentEmergencySessionID *string `gorm:"size:36;index" json:"current_emergency_session_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Patient) BeforeCreate(*gorm.DB) error {
	newID(&p.ID)
	if p.AnonymousIdentifier == "" {
		p.AnonymousIdentifier = NewAnonymousIdentifier()
	}
	return nil
}

// NewAnonymousIdentifier returns a ward-facing identifier of the form PT-XXXX.
func NewAnonymousIdentifier() string {
	return fmt.Sprintf("PT-%s", strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4]))
}

// Room returns the room number or an empty string.
func (p *Patient) Room() string {
	if p == nil || p.RoomNumber == nil {
		return ""
	}
	return *p.RoomNumber
}
