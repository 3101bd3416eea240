package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/metrics"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/notification"
	"postpartum-htn-backend/internal/parse"
	"postpartum-htn-backend/internal/session"
)

// Plausible measurement bounds in mmHg.
const (
	minSystolic  = 40
	maxSystolic  = 300
	minDiastolic = 20
	maxDiastolic = 200
)

// ReadingInput is a blood pressure measurement entered by a clinician.
type ReadingInput struct {
	Systolic  int
	Diastolic int
	// PositionedCorrectly defaults to true when nil.
	PositionedCorrectly *bool
	Notes               *string
}

func (in ReadingInput) validate() error {
	if in.Systolic < minSystolic || in.Systolic > maxSystolic {
		return apperr.Precondition(apperr.CodeInvalidInput, "systolic %d outside %d-%d", in.Systolic, minSystolic, maxSystolic)
	}
	if in.Diastolic < minDiastolic || in.Diastolic > maxDiastolic {
		return apperr.Precondition(apperr.CodeInvalidInput, "diastolic %d outside %d-%d", in.Diastolic, minDiastolic, maxDiastolic)
	}
	if in.Diastolic >= in.Systolic {
		return apperr.Precondition(apperr.CodeInvalidInput, "diastolic %d must be below systolic %d", in.Diastolic, in.Systolic)
	}
	return nil
}

// RecordReading stores a reading and applies the state machine decision it produces.
func (c *Case) RecordReading(ctx context.Context, actor Actor, in ReadingInput) (*Outcome, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	out, err := c.run(ctx, actor, "record reading", func(o *op) error {
		sess, err := o.openSession()
		if err != nil {
			return err
		}
		prev, err := o.store.LatestReadings(o.ctx, o.patient.ID, 1)
		if err != nil {
			return err
		}
		active, err := o.timers.Active(o.ctx, o.patient.ID)
		if err != nil {
			return err
		}

		positioned := true
		if in.PositionedCorrectly != nil {
			positioned = *in.PositionedCorrectly
		}
		r := &model.BloodPressureReading{
			PatientID:             o.patient.ID,
			Systolic:              in.Systolic,
			Diastolic:             in.Diastolic,
			Timestamp:             o.now,
			RecordedBy:            o.actor.ID,
			IsPositionedCorrectly: positioned,
			Notes:                 in.Notes,
		}
		if err := o.store.InsertReading(o.ctx, r); err != nil {
			return err
		}

		snap := session.Snapshot{Session: sess, ActiveTimer: active}
		if len(prev) > 0 {
			snap.Previous = &prev[0]
		}
		dec := c.engine.machine.OnReading(snap, session.Reading{Systolic: in.Systolic, Diastolic: in.Diastolic, At: o.now})

		o.out.Reading = r
		o.out.Category = string(dec.Category)
		o.out.Transition = dec.Transition
		o.record(model.ActionBPReadingRecorded, map[string]any{
			"reading_id":              r.ID,
			"systolic":                r.Systolic,
			"diastolic":               r.Diastolic,
			"category":                dec.Category,
			"transition":              dec.Transition,
			"is_positioned_correctly": positioned,
		})

		sess, err = c.apply(o, sess, r, dec)
		if err != nil {
			return err
		}
		o.out.Session = sess
		o.out.Stage = session.StageOf(sess, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordReading(out.Category)
	metrics.RecordTransition(string(out.Transition))
	return out, nil
}

// apply carries out a reading decision and returns the session as it stands afterwards.
func (c *Case) apply(o *op, sess *model.EmergencySession, r *model.BloodPressureReading, dec session.Decision) (*model.EmergencySession, error) {
	if dec.StopTimerID != "" {
		if err := o.timers.Deactivate(o.ctx, dec.StopTimerID); err != nil {
			return nil, err
		}
		o.record(model.ActionTimerSatisfied, map[string]any{"timer_id": dec.StopTimerID})
	}

	if dec.DeactivateAll {
		n, err := o.timers.DeactivateAll(o.ctx, o.patient.ID)
		if err != nil {
			return nil, err
		}
		if !dec.CreateSession && !dec.Resolve && !dec.Escalate && dec.StartTimer == "" {
			o.record(model.ActionTimersCleared, map[string]any{"count": n, "category": dec.Category})
		}
	}

	switch dec.Transition {
	case session.TransitionFirstHigh:
		o.record(model.ActionFirstHighBP, map[string]any{"systolic": r.Systolic, "diastolic": r.Diastolic})
	case session.TransitionHighWithinGap:
		o.logger.Info("severe reading inside confirmation gap",
			zap.String("patient_id", o.patient.ID),
			zap.Duration("gap", dec.Gap),
			zap.Duration("min_gap", c.engine.machine.MinConfirmationGap()))
		o.record(model.ActionHighWithinGap, map[string]any{
			"gap_seconds":     int(dec.Gap.Seconds()),
			"min_gap_seconds": int(c.engine.machine.MinConfirmationGap().Seconds()),
		})
	}

	if dec.CreateSession {
		var err error
		sess, err = openNewSession(o)
		if err != nil {
			return nil, err
		}
		o.record(model.ActionEmergencyConfirmed, map[string]any{
			"session_id":  sess.ID,
			"systolic":    r.Systolic,
			"diastolic":   r.Diastolic,
			"gap_seconds": int(dec.Gap.Seconds()),
		})
		o.notify(notification.EmergencyConfirmed(o.patient, r.Systolic, r.Diastolic))
	}

	if dec.StartTimer != "" {
		if _, err := o.startTimer(dec.StartTimer, 0); err != nil {
			return nil, err
		}
	}

	if dec.Resolve {
		if err := resolve(o, sess); err != nil {
			return nil, err
		}
		o.record(model.ActionAutoResolved, map[string]any{
			"session_id": sess.ID,
			"systolic":   r.Systolic,
			"diastolic":  r.Diastolic,
		})
	}

	if dec.Escalate {
		reason := fmt.Sprintf("BP %d/%d remains severe after %d doses of %s.",
			r.Systolic, r.Diastolic, sess.CurrentStep, sess.Algorithm())
		if err := escalate(o, sess, reason); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func openNewSession(o *op) (*model.EmergencySession, error) {
	sess := &model.EmergencySession{
		PatientID:   o.patient.ID,
		InitiatedBy: o.actor.ID,
		InitiatedAt: o.now,
		Status:      model.SessionActive,
	}
	if err := o.store.InsertSession(o.ctx, sess); err != nil {
		return nil, err
	}
	if err := o.store.SetPatientSession(o.ctx, o.patient.ID, &sess.ID); err != nil {
		return nil, err
	}
	o.patient.CurrentEmergencySessionID = &sess.ID
	return sess, nil
}

func resolve(o *op, sess *model.EmergencySession) error {
	at := o.now
	sess.Status = model.SessionResolved
	sess.ResolvedAt = &at
	if err := o.store.UpdateSession(o.ctx, sess); err != nil {
		return err
	}
	if err := o.store.SetPatientSession(o.ctx, o.patient.ID, nil); err != nil {
		return err
	}
	o.patient.CurrentEmergencySessionID = nil
	if _, err := o.timers.DeactivateAll(o.ctx, o.patient.ID); err != nil {
		return err
	}
	o.notify(notification.Resolved(o.patient))
	return nil
}

// escalate hands the case to the attending. The patient keeps pointing at the
// session until it is resolved.
func escalate(o *op, sess *model.EmergencySession, reason string) error {
	at := o.now
	sess.Status = model.SessionEscalated
	sess.EscalatedAt = &at
	if err := o.store.UpdateSession(o.ctx, sess); err != nil {
		return err
	}
	if _, err := o.timers.DeactivateAll(o.ctx, o.patient.ID); err != nil {
		return err
	}
	o.record(model.ActionSessionEscalated, map[string]any{
		"session_id":   sess.ID,
		"algorithm":    sess.Algorithm(),
		"current_step": sess.CurrentStep,
		"reason":       reason,
	})
	o.notify(notification.Escalation(o.patient, reason))
	return nil
}

// StartSession opens an emergency session without waiting for a confirming reading.
func (c *Case) StartSession(ctx context.Context, actor Actor) (*Outcome, error) {
	return c.run(ctx, actor, "start session", func(o *op) error {
		existing, err := o.openSession()
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Precondition(apperr.CodeSessionExists, "patient %s already has open session %s", o.patient.ID, existing.ID)
		}

		if _, err := o.timers.DeactivateAll(o.ctx, o.patient.ID); err != nil {
			return err
		}
		sess, err := openNewSession(o)
		if err != nil {
			return err
		}
		o.record(model.ActionSessionStarted, map[string]any{"session_id": sess.ID})
		o.notify(notification.EmergencyDeclared(o.patient, o.actor.ID))

		if _, err := o.startTimer(model.TimerAdministrationDeadline, 0); err != nil {
			return err
		}
		o.out.Session = sess
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition("start")
		return nil
	})
}

// SelectAlgorithm fixes the medication algorithm of the open session. Contraindications
// are returned as warnings and never block the selection.
func (c *Case) SelectAlgorithm(ctx context.Context, actor Actor, alg clinical.Algorithm) (*Outcome, error) {
	proto, err := clinical.ProtocolFor(alg)
	if err != nil {
		return nil, apperr.Precondition(apperr.CodeInvalidInput, "%v", err)
	}

	return c.run(ctx, actor, "select algorithm", func(o *op) error {
		sess, err := o.requireOpenSession()
		if err != nil {
			return err
		}
		if err := session.CanSelectAlgorithm(sess); err != nil {
			return err
		}

		name := string(alg)
		sess.AlgorithmSelected = &name
		if err := o.store.UpdateSession(o.ctx, sess); err != nil {
			return err
		}

		warnings := clinical.Warnings(alg, o.patient.HasAsthma)
		o.record(model.ActionAlgorithmSelected, map[string]any{
			"session_id": sess.ID,
			"algorithm":  name,
			"warnings":   warnings,
		})
		o.notify(notification.AlgorithmSelected(o.patient, proto))
		if len(warnings) > 0 {
			o.logger.Warn("algorithm selected despite contraindication",
				zap.String("patient_id", o.patient.ID),
				zap.String("algorithm", name),
				zap.Strings("warnings", warnings))
			o.notify(notification.AsthmaWarning(o.patient, proto))
		}

		active, err := o.timers.Active(o.ctx, o.patient.ID)
		if err != nil {
			return err
		}
		if active == nil {
			if _, err := o.startTimer(model.TimerAdministrationDeadline, 0); err != nil {
				return err
			}
		} else {
			o.out.Timer = active
		}

		o.out.Session = sess
		o.out.Warnings = warnings
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition("select_algorithm")
		return nil
	})
}

// OrderNextDose orders the next dose of the selected algorithm. With administerNow the
// dose is also recorded as given by the actor. A new dose cannot be ordered while an
// earlier one is still waiting to be given.
func (c *Case) OrderNextDose(ctx context.Context, actor Actor, administerNow bool) (*Outcome, error) {
	return c.run(ctx, actor, "order dose", func(o *op) error {
		sess, err := o.requireOpenSession()
		if err != nil {
			return err
		}
		d, err := session.NextDose(sess)
		if err != nil {
			return err
		}
		given, err := o.store.ListMedications(o.ctx, sess.ID)
		if err != nil {
			return err
		}
		for i := range given {
			if !given[i].Administered() {
				return apperr.Precondition(apperr.CodeInvalidTransition,
					"order dose: dose %d (%s %s) is not administered yet", given[i].DoseNumber, given[i].MedicationName, given[i].Dose)
			}
		}
		amount, err := parse.DoseAmount(d.Amount)
		if err != nil {
			return fmt.Errorf("protocol dose %q: %w", d.Amount, err)
		}

		dose := &model.MedicationDose{
			PatientID:          o.patient.ID,
			EmergencySessionID: sess.ID,
			MedicationName:     d.Medication,
			Algorithm:          sess.Algorithm(),
			Route:              string(d.Route),
			DoseNumber:         d.Step,
			Dose:               d.Amount,
			DoseAmount:         amount,
			Unit:               "mg",
			WaitMinutes:        d.WaitMins,
			OrderedBy:          o.actor.ID,
			OrderedAt:          o.now,
		}
		if err := o.store.InsertMedication(o.ctx, dose); err != nil {
			return err
		}
		sess.CurrentStep = d.Step
		if err := o.store.UpdateSession(o.ctx, sess); err != nil {
			return err
		}
		o.record(model.ActionMedicationOrdered, map[string]any{
			"session_id":  sess.ID,
			"dose_id":     dose.ID,
			"medication":  d.Medication,
			"dose":        d.Amount,
			"route":       d.Route,
			"dose_number": d.Step,
		})
		o.notify(notification.MedicationOrdered(o.patient, d))

		if administerNow {
			if err := administer(o, dose); err != nil {
				return err
			}
		}

		if clinical.HasAlgorithmFailed(clinical.Algorithm(sess.Algorithm()), sess.CurrentStep) {
			o.logger.Info("protocol complete",
				zap.String("patient_id", o.patient.ID),
				zap.String("session_id", sess.ID),
				zap.String("algorithm", sess.Algorithm()),
				zap.Int("doses", sess.CurrentStep))
			o.record(model.ActionProtocolComplete, map[string]any{
				"session_id": sess.ID,
				"algorithm":  sess.Algorithm(),
				"doses":      sess.CurrentStep,
			})
		}

		o.out.Session = sess
		o.out.Dose = dose
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition("order_dose")
		return nil
	})
}

// AdministerMedication records that an ordered dose was given and starts its wait.
func (c *Case) AdministerMedication(ctx context.Context, actor Actor, doseID string) (*Outcome, error) {
	return c.run(ctx, actor, "administer medication", func(o *op) error {
		sess, err := o.requireOpenSession()
		if err != nil {
			return err
		}
		dose, err := o.store.GetMedication(o.ctx, doseID)
		if errors.Is(err, apperr.ErrNotFound) || (err == nil && dose.PatientID != o.patient.ID) {
			return apperr.Precondition(apperr.CodeDoseNotFound, "dose %s not found for patient %s", doseID, o.patient.ID)
		}
		if err != nil {
			return err
		}
		if err := session.CanAdminister(sess, dose); err != nil {
			return err
		}
		if err := administer(o, dose); err != nil {
			return err
		}

		o.out.Session = sess
		o.out.Dose = dose
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition("administer_dose")
		return nil
	})
}

func administer(o *op, dose *model.MedicationDose) error {
	at := o.now
	wait := dose.WaitMinutes
	next := at.Add(minutes(wait))
	by := o.actor.ID
	dose.AdministeredAt = &at
	dose.AdministeredBy = &by
	dose.NextBPCheckAt = &next
	if err := o.store.MarkAdministered(o.ctx, dose); err != nil {
		return err
	}
	if _, err := o.startTimer(model.TimerMedicationWait, minutes(wait)); err != nil {
		return err
	}
	o.record(model.ActionMedicationAdministered, map[string]any{
		"dose_id":          dose.ID,
		"medication":       dose.MedicationName,
		"dose":             dose.Dose,
		"dose_number":      dose.DoseNumber,
		"next_bp_check_at": next,
	})
	o.notify(notification.MedicationAdministered(o.patient, dose))
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// AcknowledgeSession records the clinician taking over an escalated case. The status
// stays escalated.
func (c *Case) AcknowledgeSession(ctx context.Context, actor Actor) (*Outcome, error) {
	return c.run(ctx, actor, "acknowledge session", func(o *op) error {
		sess, err := o.requireOpenSession()
		if err != nil {
			return err
		}
		if err := session.CanAcknowledge(sess); err != nil {
			return err
		}

		at := o.now
		by := o.actor.ID
		sess.AcknowledgedAt = &at
		sess.AcknowledgedBy = &by
		if err := o.store.UpdateSession(o.ctx, sess); err != nil {
			return err
		}
		o.record(model.ActionSessionAcknowledged, map[string]any{"session_id": sess.ID, "role": o.actor.Role})
		o.notify(notification.Acknowledged(o.patient, by))

		o.out.Session = sess
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition("acknowledge")
		return nil
	})
}

// ResolveSession closes the open session by hand.
func (c *Case) ResolveSession(ctx context.Context, actor Actor) (*Outcome, error) {
	return c.run(ctx, actor, "resolve session", func(o *op) error {
		sess, err := o.requireOpenSession()
		if err != nil {
			return err
		}
		if err := session.CanResolve(sess); err != nil {
			return err
		}
		if err := resolve(o, sess); err != nil {
			return err
		}
		o.record(model.ActionSessionResolved, map[string]any{"session_id": sess.ID})

		o.out.Session = sess
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition(string(session.TransitionResolve))
		return nil
	})
}

// EscalateSession hands an active session to the attending before the protocol runs out.
func (c *Case) EscalateSession(ctx context.Context, actor Actor, reason string) (*Outcome, error) {
	return c.run(ctx, actor, "escalate session", func(o *op) error {
		sess, err := o.requireOpenSession()
		if err != nil {
			return err
		}
		if err := session.CanEscalate(sess); err != nil {
			return err
		}
		if reason == "" {
			reason = fmt.Sprintf("Escalated by %s.", o.actor.ID)
		}
		if err := escalate(o, sess, reason); err != nil {
			return err
		}

		o.out.Session = sess
		o.out.Stage = session.StageOf(sess, nil)
		metrics.RecordTransition(string(session.TransitionEscalate))
		return nil
	})
}
