package notification

import (
	"fmt"
	"time"

	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/model"
)

func label(p *model.Patient) string {
	if room := p.Room(); room != "" {
		return "Room " + room
	}
	return p.AnonymousIdentifier
}

func request(p *model.Patient, event Event, priority model.Priority, title, message string, roles ...model.Role) Request {
	return Request{
		Event:      event,
		Roles:      roles,
		Priority:   priority,
		Title:      title,
		Message:    message,
		PatientID:  p.ID,
		RoomNumber: p.Room(),
	}
}

// RecheckStarted follows the first severe-range reading.
func RecheckStarted(p *model.Patient, expiresAt time.Time) Request {
	return request(p, EventRecheckStarted, model.PriorityWarning,
		"Severe BP - Recheck Required",
		fmt.Sprintf("%s: severe-range BP. Take a confirmatory reading within %d minutes (by %s).",
			label(p), int(clinical.RecheckInterval.Minutes()), expiresAt.Format("15:04")),
		model.RoleNurse)
}

// EmergencyConfirmed follows the confirming severe reading.
func EmergencyConfirmed(p *model.Patient, systolic, diastolic int) Request {
	return request(p, EventEmergencyConfirmed, model.PriorityCritical,
		"Hypertensive Emergency Confirmed",
		fmt.Sprintf("%s: BP %d/%d confirmed. Select a medication algorithm and treat within %d minutes.",
			label(p), systolic, diastolic, int(clinical.AdministrationDeadline.Minutes())),
		model.RoleNurse, model.RoleResident, model.RoleChargeNurse)
}

// EmergencyDeclared follows a manually started emergency session.
func EmergencyDeclared(p *model.Patient, by string) Request {
	return request(p, EventEmergencyDeclared, model.PriorityCritical,
		"Hypertensive Emergency Declared",
		fmt.Sprintf("%s: emergency session started by %s. Select a medication algorithm and treat within %d minutes.",
			label(p), by, int(clinical.AdministrationDeadline.Minutes())),
		model.RoleNurse, model.RoleResident, model.RoleChargeNurse)
}

// Acknowledged tells the team the attending has taken over an escalated case.
func Acknowledged(p *model.Patient, by string) Request {
	return request(p, EventSessionAcknowledged, model.PriorityInfo,
		"Escalation Acknowledged",
		fmt.Sprintf("%s: %s has taken over care.", label(p), by),
		model.RoleResident, model.RoleNurse)
}

// AdministrationDeadlineStarted tells the resident the treatment clock is running.
func AdministrationDeadlineStarted(p *model.Patient, expiresAt time.Time) Request {
	return request(p, EventAdministrationDeadlineStarted, model.PriorityCritical,
		"Administration Deadline Started",
		fmt.Sprintf("%s: first antihypertensive dose due by %s.", label(p), expiresAt.Format("15:04")),
		model.RoleResident)
}

// AlgorithmSelected informs the nursing team of the chosen algorithm.
func AlgorithmSelected(p *model.Patient, proto clinical.Protocol) Request {
	return request(p, EventAlgorithmSelected, model.PriorityInfo,
		"Medication Algorithm Selected",
		fmt.Sprintf("%s: %s algorithm selected (%d doses maximum).", label(p), proto.Name, proto.MaxDoses),
		model.RoleNurse, model.RoleChargeNurse)
}

// AsthmaWarning is the advisory contraindication warning.
func AsthmaWarning(p *model.Patient, proto clinical.Protocol) Request {
	return request(p, EventAsthmaWarning, model.PriorityWarning,
		"CAUTION: Patient Has Asthma",
		fmt.Sprintf("%s: %s may be contraindicated. Consider alternative algorithm.", label(p), proto.Name),
		model.RoleResident)
}

// MedicationOrdered asks the nurse to give the ordered dose.
func MedicationOrdered(p *model.Patient, d clinical.Dose) Request {
	return request(p, EventMedicationOrdered, model.PriorityCritical,
		"Medication Ordered",
		fmt.Sprintf("%s: %s %s %s (dose %d) ordered. Administer now.", label(p), d.Medication, d.Amount, d.Route, d.Step),
		model.RoleNurse)
}

// MedicationAdministered informs the resident a dose was given.
func MedicationAdministered(p *model.Patient, m *model.MedicationDose) Request {
	return request(p, EventMedicationAdministered, model.PriorityInfo,
		"Medication Administered",
		fmt.Sprintf("%s: %s %s %s given. Recheck BP in %d minutes.", label(p), m.MedicationName, m.Dose, m.Route, m.WaitMinutes),
		model.RoleResident)
}

// MedicationWaitStarted tells the nurse when the post-dose check is due.
func MedicationWaitStarted(p *model.Patient, wait time.Duration, expiresAt time.Time) Request {
	return request(p, EventMedicationWaitStarted, model.PriorityInfo,
		"Post-Dose BP Check Scheduled",
		fmt.Sprintf("%s: recheck BP in %d minutes (at %s).", label(p), int(wait.Minutes()), expiresAt.Format("15:04")),
		model.RoleNurse)
}

// Escalation pages the attending when the algorithm has failed.
func Escalation(p *model.Patient, reason string) Request {
	return request(p, EventEscalation, model.PriorityStat,
		"ESCALATION: Attending Required",
		fmt.Sprintf("%s: %s. Attending physician required immediately.", label(p), reason),
		model.RoleAttending, model.RoleResident)
}

// Resolved is broadcast when BP is back in target.
func Resolved(p *model.Patient) Request {
	return request(p, EventResolved, model.PriorityInfo,
		"BP Controlled - Emergency Resolved",
		fmt.Sprintf("%s: blood pressure is in target range. Emergency resolved.", label(p)))
}

// RecheckDue fires when the recheck timer has run out.
func RecheckDue(p *model.Patient) Request {
	return request(p, EventRecheckDue, model.PriorityCritical,
		"BP Recheck Due",
		fmt.Sprintf("BP recheck timer expired for %s. Take confirmatory reading NOW.", label(p)),
		model.RoleNurse, model.RoleChargeNurse)
}

// MedicationWaitComplete fires when the post-dose wait has elapsed.
func MedicationWaitComplete(p *model.Patient) Request {
	return request(p, EventMedicationWaitComplete, model.PriorityCritical,
		"Medication Wait Complete",
		fmt.Sprintf("Medication wait complete for %s. Check BP NOW.", label(p)),
		model.RoleNurse)
}

// AdministrationOverdue fires when no dose was given within the deadline.
func AdministrationOverdue(p *model.Patient) Request {
	return request(p, EventAdministrationOverdue, model.PriorityCritical,
		"Administration Deadline Passed",
		fmt.Sprintf("%s: no antihypertensive given within %d minutes of confirmation. Treat NOW.",
			label(p), int(clinical.AdministrationDeadline.Minutes())),
		model.RoleResident, model.RoleChargeNurse)
}
