package workflow

import (
	"context"
	"errors"
	"time"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/session"
	"postpartum-htn-backend/internal/store"
	"postpartum-htn-backend/internal/timer"
)

const viewReadings = 20

// View is the derived state of a case as shown to clinicians.
type View struct {
	Patient          *model.Patient               `json:"patient"`
	Session          *model.EmergencySession      `json:"session,omitempty"`
	Stage            session.Stage                `json:"stage"`
	NextAction       string                       `json:"next_action"`
	NextDose         *clinical.Dose               `json:"next_dose,omitempty"`
	ActiveTimer      *model.Timer                 `json:"active_timer,omitempty"`
	RemainingSeconds int64                        `json:"remaining_seconds"`
	TimerExpired     bool                         `json:"timer_expired"`
	Readings         []model.BloodPressureReading `json:"readings"`
	Medications      []model.MedicationDose       `json:"medications"`
	Warnings         []string                     `json:"warnings,omitempty"`
	DerivedAt        time.Time                    `json:"derived_at"`
}

// View derives the current state of the case from the store.
func (c *Case) View(ctx context.Context) (*View, error) {
	e := c.engine
	p, err := e.store.GetPatient(ctx, c.patientID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Precondition(apperr.CodePatientNotFound, "patient %s not found", c.patientID)
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	v := &View{Patient: p, DerivedAt: now}

	if p.CurrentEmergencySessionID != nil {
		sess, err := e.store.GetSession(ctx, *p.CurrentEmergencySessionID)
		switch {
		case err == nil && sess.Open():
			v.Session = sess
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	v.Readings, err = e.store.LatestReadings(ctx, p.ID, viewReadings)
	if err != nil {
		return nil, err
	}
	v.ActiveTimer, err = e.timers.Active(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if v.ActiveTimer != nil {
		v.RemainingSeconds = int64(timer.Remaining(v.ActiveTimer, now).Seconds())
		v.TimerExpired = timer.Expired(v.ActiveTimer, now)
	}

	var latest *model.BloodPressureReading
	if len(v.Readings) > 0 {
		latest = &v.Readings[0]
	}
	v.Stage = session.StageOf(v.Session, latest)
	v.NextAction = session.NextAction(v.Stage, v.Session)

	if v.Session != nil {
		v.Medications, err = e.store.ListMedications(ctx, v.Session.ID)
		if err != nil {
			return nil, err
		}
		if alg := clinical.Algorithm(v.Session.Algorithm()); alg != "" {
			if d, ok := clinical.NextDose(alg, v.Session.CurrentStep); ok && v.Session.Status == model.SessionActive {
				v.NextDose = &d
			}
			v.Warnings = clinical.Warnings(alg, p.HasAsthma)
		}
	}
	e.remember(c)
	return v, nil
}

// NewPatient describes a patient to register.
type NewPatient struct {
	RoomNumber *string
	HasAsthma  bool
}

// CreatePatient registers a patient under a generated anonymous identifier.
func (e *Engine) CreatePatient(ctx context.Context, actor Actor, in NewPatient) (*model.Patient, error) {
	if actor.ID == "" {
		return nil, apperr.Precondition(apperr.CodeMissingActor, "create patient: no authenticated actor")
	}
	p := &model.Patient{RoomNumber: in.RoomNumber, HasAsthma: in.HasAsthma}
	err := e.store.Tx(ctx, func(tx store.Store) error {
		if err := tx.CreatePatient(ctx, p); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, model.NewAuditLog(e.now(), actor.ID, model.ActionPatientRegistered, p.ID, map[string]any{
			"anonymous_identifier": p.AnonymousIdentifier,
			"has_asthma":           p.HasAsthma,
		}))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Patient returns one patient.
func (e *Engine) Patient(ctx context.Context, id string) (*model.Patient, error) {
	p, err := e.store.GetPatient(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Precondition(apperr.CodePatientNotFound, "patient %s not found", id)
	}
	return p, err
}

// Patients lists patients, optionally only those with an open emergency.
func (e *Engine) Patients(ctx context.Context, emergencyOnly bool) ([]model.Patient, error) {
	return e.store.ListPatients(ctx, store.PatientFilter{EmergencyOnly: emergencyOnly})
}

// Readings returns the newest readings of a patient first.
func (e *Engine) Readings(ctx context.Context, patientID string, limit int) ([]model.BloodPressureReading, error) {
	if _, err := e.Patient(ctx, patientID); err != nil {
		return nil, err
	}
	return e.store.LatestReadings(ctx, patientID, limit)
}

// ActiveTimer returns the running timer of a patient, or nil.
func (e *Engine) ActiveTimer(ctx context.Context, patientID string) (*model.Timer, error) {
	return e.timers.Active(ctx, patientID)
}

// AuditTrail returns the newest audit entries of a patient first.
func (e *Engine) AuditTrail(ctx context.Context, patientID string, limit int) ([]model.AuditLog, error) {
	return e.store.ListAudit(ctx, patientID, limit)
}

// Notifications lists persisted notifications.
func (e *Engine) Notifications(ctx context.Context, filter store.NotificationFilter) ([]model.Notification, error) {
	return e.store.ListNotifications(ctx, filter)
}

// AcknowledgeNotification marks a notification as seen. Repeating it is harmless.
func (e *Engine) AcknowledgeNotification(ctx context.Context, actor Actor, id string) error {
	if actor.ID == "" {
		return apperr.Precondition(apperr.CodeMissingActor, "acknowledge notification: no authenticated actor")
	}
	return e.store.Tx(ctx, func(tx store.Store) error {
		n, err := tx.GetNotification(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Precondition(apperr.CodeNotificationAbsent, "notification %s not found", id)
		}
		if err != nil {
			return err
		}
		if err := tx.AcknowledgeNotification(ctx, id, actor.ID, e.now()); err != nil {
			return err
		}

		patientID := ""
		if n.PatientID != nil {
			patientID = *n.PatientID
		}
		return tx.AppendAudit(ctx, model.NewAuditLog(e.now(), actor.ID, model.ActionNotificationAcknowledge, patientID, map[string]any{
			"notification_id": id,
			"event":           n.Event,
		}))
	})
}
