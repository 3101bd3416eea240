package model

import (
	"github.com/google/uuid"
)

// Role is a clinical personnel role that can receive notifications.
type Role string

const (
	RoleNurse       Role = "nurse"
	RoleResident    Role = "resident"
	RoleAttending   Role = "attending"
	RoleChargeNurse Role = "chargeNurse"
)

// Roles lists every role.
var Roles = []Role{RoleNurse, RoleResident, RoleAttending, RoleChargeNurse}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
	PriorityStat     Priority = "stat"
)

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
