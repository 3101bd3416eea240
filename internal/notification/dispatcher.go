package notification

import (
	"context"
	"time"

	"postpartum-htn-backend/internal/model"
)

// Event names a notification-worthy workflow event.
type Event string

const (
	EventRecheckStarted                Event = "bp_recheck_started"
	EventEmergencyConfirmed            Event = "emergency_confirmed"
	EventEmergencyDeclared             Event = "emergency_declared"
	EventSessionAcknowledged           Event = "session_acknowledged"
	EventAdministrationDeadlineStarted Event = "administration_deadline_started"
	EventAlgorithmSelected             Event = "algorithm_selected"
	EventAsthmaWarning                 Event = "asthma_warning"
	EventMedicationOrdered             Event = "medication_ordered"
	EventMedicationAdministered        Event = "medication_administered"
	EventMedicationWaitStarted         Event = "medication_wait_started"
	EventEscalation                    Event = "escalation"
	EventResolved                      Event = "resolved"
	EventRecheckDue                    Event = "bp_recheck_due"
	EventMedicationWaitComplete        Event = "medication_wait_complete"
	EventAdministrationOverdue         Event = "administration_overdue"
)

// Request is a single notification. Empty Roles means broadcast to everyone.
type Request struct {
	Event      Event          `json:"event"`
	Roles      []model.Role   `json:"roles,omitempty"`
	Priority   model.Priority `json:"priority"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	PatientID  string         `json:"patient_id,omitempty"`
	RoomNumber string         `json:"room_number,omitempty"`
	At         time.Time      `json:"at"`
}

// Broadcast reports whether the request targets every role.
func (r Request) Broadcast() bool {
	return len(r.Roles) == 0
}

// Dispatcher is the outbound sink for notifications. Delivery is best effort.
type Dispatcher interface {
	Notify(ctx context.Context, req Request) error
}

// DispatchAll sends each request and returns the first error.
func DispatchAll(ctx context.Context, d Dispatcher, reqs []Request) error {
	var first error
	for _, r := range reqs {
		if err := d.Notify(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
