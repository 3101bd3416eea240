package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAnonymousIdentifier(t *testing.T) {
	re := regexp.MustCompile(`^PT-[0-9A-F]{4}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, re, NewAnonymousIdentifier())
	}
}

func TestNewAuditLog(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := NewAuditLog(at, "nurse-1", ActionBPReadingRecorded, "p1", map[string]any{"systolic": 170})
	assert.Equal(t, "nurse-1", entry.UserID)
	assert.JSONEq(t, `{"systolic":170}`, string(entry.Details))

	empty := NewAuditLog(at, "nurse-1", ActionSessionResolved, "p1", nil)
	assert.JSONEq(t, `{}`, string(empty.Details))
}

func TestSessionOpen(t *testing.T) {
	var nilSession *EmergencySession
	assert.False(t, nilSession.Open())
	assert.True(t, (&EmergencySession{Status: SessionActive}).Open())
	assert.True(t, (&EmergencySession{Status: SessionEscalated}).Open())
	assert.False(t, (&EmergencySession{Status: SessionResolved}).Open())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleChargeNurse.Valid())
	assert.False(t, Role("janitor").Valid())
}
