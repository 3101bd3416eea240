// Package session holds the emergency workflow state machine. Everything here is pure:
// callers load the current state, ask for a Decision, then apply it.
package session

import (
	"time"

	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/model"
)

// Stage is the derived position of a patient in the emergency workflow.
type Stage string

const (
	StageNone              Stage = "none"
	StageFirstHigh         Stage = "first_high_observed"
	StageConfirmed         Stage = "confirmed_active"
	StageAlgorithmSelected Stage = "algorithm_selected"
	StageTreating          Stage = "treating"
	StageResolved          Stage = "resolved"
	StageEscalated         Stage = "escalated"
)

// Transition names the rule that handled a reading.
type Transition string

const (
	TransitionFirstHigh     Transition = "first_high"
	TransitionHighWithinGap Transition = "high_within_gap"
	TransitionConfirm       Transition = "confirm"
	TransitionNormalize     Transition = "normalize"
	TransitionBorderline    Transition = "borderline"
	TransitionEscalate      Transition = "escalate"
	TransitionResolve       Transition = "resolve"
	TransitionSatisfyTimer  Transition = "satisfy_timer"
	TransitionObserve       Transition = "observe"
)

// Snapshot is the state a new reading is evaluated against.
type Snapshot struct {
	// Session is the patient's open (active or escalated) session, if any.
	Session *model.EmergencySession
	// Previous is the most recent reading before the new one.
	Previous *model.BloodPressureReading
	// ActiveTimer is the patient's running timer, if any.
	ActiveTimer *model.Timer
}

// Reading is a new measurement.
type Reading struct {
	Systolic  int
	Diastolic int
	At        time.Time
}

// Decision lists the effects a reading must have. Timer stops are applied before
// StartTimer.
type Decision struct {
	Transition    Transition
	Category      clinical.Category
	DeactivateAll bool
	StopTimerID   string
	StartTimer    model.TimerType
	CreateSession bool
	Resolve       bool
	Escalate      bool
	// Gap is the time since the previous reading, zero when there is none.
	Gap time.Duration
}

// Machine evaluates readings.
type Machine struct {
	minGap time.Duration
}

// NewMachine creates a machine. minGap is the shortest interval between two severe
// readings that confirms an emergency.
func NewMachine(minGap time.Duration) *Machine {
	if minGap <= 0 {
		minGap = clinical.DefaultMinConfirmationGap
	}
	return &Machine{minGap: minGap}
}

// MinConfirmationGap returns the configured confirmation interval.
func (m *Machine) MinConfirmationGap() time.Duration {
	return m.minGap
}

// OnReading decides what a reading does to the workflow.
func (m *Machine) OnReading(snap Snapshot, r Reading) Decision {
	d := Decision{Category: clinical.Classify(r.Systolic, r.Diastolic)}
	if snap.Previous != nil {
		d.Gap = r.At.Sub(snap.Previous.Timestamp)
	}

	if snap.Session.Open() {
		return m.duringSession(snap, d)
	}

	switch d.Category {
	case clinical.High:
		prevHigh := snap.Previous != nil &&
			clinical.Classify(snap.Previous.Systolic, snap.Previous.Diastolic) == clinical.High
		switch {
		case !prevHigh:
			d.Transition = TransitionFirstHigh
			d.DeactivateAll = true
			d.StartTimer = model.TimerBPRecheck
		case d.Gap >= m.minGap:
			d.Transition = TransitionConfirm
			d.DeactivateAll = true
			d.CreateSession = true
			d.StartTimer = model.TimerAdministrationDeadline
		default:
			d.Transition = TransitionHighWithinGap
		}
	case clinical.InTarget:
		d.Transition = TransitionNormalize
		d.DeactivateAll = snap.ActiveTimer != nil
	default:
		d.Transition = TransitionBorderline
		d.DeactivateAll = snap.ActiveTimer != nil
	}
	return d
}

func (m *Machine) duringSession(snap Snapshot, d Decision) Decision {
	sess := snap.Session

	if d.Category == clinical.High && sess.Status == model.SessionActive && sess.AlgorithmSelected != nil &&
		clinical.HasAlgorithmFailed(clinical.Algorithm(*sess.AlgorithmSelected), sess.CurrentStep) {
		d.Transition = TransitionEscalate
		d.Escalate = true
		d.DeactivateAll = true
		return d
	}

	if d.Category == clinical.InTarget {
		d.Transition = TransitionResolve
		d.Resolve = true
		d.DeactivateAll = true
		return d
	}

	if d.Category == clinical.High && snap.ActiveTimer != nil && snap.ActiveTimer.IsActive {
		d.Transition = TransitionSatisfyTimer
		d.StopTimerID = snap.ActiveTimer.ID
		return d
	}

	d.Transition = TransitionObserve
	return d
}

// StageOf derives the workflow stage from the open session and the latest reading.
func StageOf(sess *model.EmergencySession, latest *model.BloodPressureReading) Stage {
	if sess == nil {
		if latest != nil && clinical.Classify(latest.Systolic, latest.Diastolic) == clinical.High {
			return StageFirstHigh
		}
		return StageNone
	}
	switch sess.Status {
	case model.SessionResolved:
		return StageResolved
	case model.SessionEscalated:
		return StageEscalated
	}
	switch {
	case sess.AlgorithmSelected == nil:
		return StageConfirmed
	case sess.CurrentStep == 0:
		return StageAlgorithmSelected
	default:
		return StageTreating
	}
}
