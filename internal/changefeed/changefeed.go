// Package changefeed distributes "something changed" signals for store rows.
//
// Signals are delivered at least once and may arrive out of order or coalesced.
// Subscribers must treat a signal as a prompt to re-read state, never as the state.
package changefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the kind of row change.
type Event string

const (
	EventInsert Event = "insert"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Tables emitting changes.
const (
	TablePatients      = "patients"
	TableReadings      = "bp_readings"
	TableMedications   = "medications"
	TableSessions      = "emergency_sessions"
	TableTimers        = "timers"
	TableNotifications = "notifications"
)

// Change identifies a committed row change.
type Change struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin,omitempty"`
	Table     string    `json:"table"`
	Event     Event     `json:"event"`
	RowID     string    `json:"row_id,omitempty"`
	PatientID string    `json:"patient_id,omitempty"`
	At        time.Time `json:"at"`
}

// NewChange builds a change stamped with a fresh id.
func NewChange(table string, event Event, rowID, patientID string, at time.Time) Change {
	return Change{
		ID:        uuid.NewString(),
		Table:     table,
		Event:     event,
		RowID:     rowID,
		PatientID: patientID,
		At:        at,
	}
}

// Publisher fans committed changes out.
type Publisher interface {
	Publish(ctx context.Context, changes ...Change) error
}

// Multi publishes to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, changes ...Change) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, changes...); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func encode(c Change) ([]byte, error) {
	return json.Marshal(c)
}

func decode(raw []byte) (Change, error) {
	var c Change
	err := json.Unmarshal(raw, &c)
	return c, err
}
