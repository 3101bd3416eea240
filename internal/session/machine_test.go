package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/model"
)

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func reading(sys, dia int, at time.Time) *model.BloodPressureReading {
	return &model.BloodPressureReading{Systolic: sys, Diastolic: dia, Timestamp: at}
}

func activeSession(alg string, step int) *model.EmergencySession {
	s := &model.EmergencySession{ID: "s1", Status: model.SessionActive, CurrentStep: step}
	if alg != "" {
		s.AlgorithmSelected = &alg
	}
	return s
}

func TestOnReading(t *testing.T) {
	m := NewMachine(time.Minute)
	timer := &model.Timer{ID: "t1", IsActive: true}
	escalated := &model.EmergencySession{ID: "s2", Status: model.SessionEscalated}

	tests := []struct {
		name     string
		snap     Snapshot
		reading  Reading
		expected Decision
	}{
		{
			name:     "first severe reading starts recheck",
			snap:     Snapshot{Previous: reading(140, 90, t0.Add(-time.Hour))},
			reading:  Reading{170, 100, t0},
			expected: Decision{Transition: TransitionFirstHigh, Category: clinical.High, DeactivateAll: true, StartTimer: model.TimerBPRecheck, Gap: time.Hour},
		},
		{
			name:     "no previous reading counts as first",
			reading:  Reading{165, 95, t0},
			expected: Decision{Transition: TransitionFirstHigh, Category: clinical.High, DeactivateAll: true, StartTimer: model.TimerBPRecheck},
		},
		{
			name:     "second severe reading after gap confirms",
			snap:     Snapshot{Previous: reading(170, 100, t0.Add(-15 * time.Minute)), ActiveTimer: timer},
			reading:  Reading{168, 112, t0},
			expected: Decision{Transition: TransitionConfirm, Category: clinical.High, DeactivateAll: true, CreateSession: true, StartTimer: model.TimerAdministrationDeadline, Gap: 15 * time.Minute},
		},
		{
			name:     "second severe reading within gap is logged only",
			snap:     Snapshot{Previous: reading(170, 100, t0.Add(-30 * time.Second)), ActiveTimer: timer},
			reading:  Reading{172, 101, t0},
			expected: Decision{Transition: TransitionHighWithinGap, Category: clinical.High, Gap: 30 * time.Second},
		},
		{
			name:     "in target without session clears stray timer",
			snap:     Snapshot{Previous: reading(170, 100, t0.Add(-10 * time.Minute)), ActiveTimer: timer},
			reading:  Reading{140, 90, t0},
			expected: Decision{Transition: TransitionNormalize, Category: clinical.InTarget, DeactivateAll: true, Gap: 10 * time.Minute},
		},
		{
			name:     "borderline without session clears stray timer",
			snap:     Snapshot{Previous: reading(170, 100, t0.Add(-5 * time.Minute)), ActiveTimer: timer},
			reading:  Reading{155, 95, t0},
			expected: Decision{Transition: TransitionBorderline, Category: clinical.Borderline, DeactivateAll: true, Gap: 5 * time.Minute},
		},
		{
			name:     "borderline without session and no timer",
			reading:  Reading{155, 95, t0},
			expected: Decision{Transition: TransitionBorderline, Category: clinical.Borderline},
		},
		{
			name:     "severe at max step escalates",
			snap:     Snapshot{Session: activeSession("labetalol", 3), ActiveTimer: timer},
			reading:  Reading{175, 105, t0},
			expected: Decision{Transition: TransitionEscalate, Category: clinical.High, Escalate: true, DeactivateAll: true},
		},
		{
			name:     "hydralazine fails after two doses",
			snap:     Snapshot{Session: activeSession("hydralazine", 2)},
			reading:  Reading{161, 100, t0},
			expected: Decision{Transition: TransitionEscalate, Category: clinical.High, Escalate: true, DeactivateAll: true},
		},
		{
			name:     "in target during session resolves",
			snap:     Snapshot{Session: activeSession("nifedipine", 1), ActiveTimer: timer},
			reading:  Reading{145, 92, t0},
			expected: Decision{Transition: TransitionResolve, Category: clinical.InTarget, Resolve: true, DeactivateAll: true},
		},
		{
			name:     "in target before algorithm resolves",
			snap:     Snapshot{Session: activeSession("", 0), ActiveTimer: timer},
			reading:  Reading{135, 85, t0},
			expected: Decision{Transition: TransitionResolve, Category: clinical.InTarget, Resolve: true, DeactivateAll: true},
		},
		{
			name:     "severe during treatment satisfies running timer",
			snap:     Snapshot{Session: activeSession("labetalol", 1), ActiveTimer: timer},
			reading:  Reading{170, 100, t0},
			expected: Decision{Transition: TransitionSatisfyTimer, Category: clinical.High, StopTimerID: "t1"},
		},
		{
			name:     "severe during treatment without timer is observed",
			snap:     Snapshot{Session: activeSession("labetalol", 1)},
			reading:  Reading{170, 100, t0},
			expected: Decision{Transition: TransitionObserve, Category: clinical.High},
		},
		{
			name:     "borderline during session is observed",
			snap:     Snapshot{Session: activeSession("labetalol", 1), ActiveTimer: timer},
			reading:  Reading{155, 95, t0},
			expected: Decision{Transition: TransitionObserve, Category: clinical.Borderline},
		},
		{
			name:     "severe after escalation does not open a new session",
			snap:     Snapshot{Session: escalated, Previous: reading(170, 100, t0.Add(-20 * time.Minute))},
			reading:  Reading{170, 100, t0},
			expected: Decision{Transition: TransitionObserve, Category: clinical.High, Gap: 20 * time.Minute},
		},
		{
			name:     "in target after escalation resolves",
			snap:     Snapshot{Session: escalated},
			reading:  Reading{140, 90, t0},
			expected: Decision{Transition: TransitionResolve, Category: clinical.InTarget, Resolve: true, DeactivateAll: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.OnReading(tt.snap, tt.reading))
		})
	}
}

func TestNewMachine_DefaultGap(t *testing.T) {
	assert.Equal(t, clinical.DefaultMinConfirmationGap, NewMachine(0).MinConfirmationGap())
}

func TestStageOf(t *testing.T) {
	alg := "labetalol"
	assert.Equal(t, StageNone, StageOf(nil, nil))
	assert.Equal(t, StageNone, StageOf(nil, reading(140, 90, t0)))
	assert.Equal(t, StageFirstHigh, StageOf(nil, reading(170, 90, t0)))
	assert.Equal(t, StageConfirmed, StageOf(activeSession("", 0), nil))
	assert.Equal(t, StageAlgorithmSelected, StageOf(activeSession(alg, 0), nil))
	assert.Equal(t, StageTreating, StageOf(activeSession(alg, 2), nil))
	assert.Equal(t, StageEscalated, StageOf(&model.EmergencySession{Status: model.SessionEscalated}, nil))
	assert.Equal(t, StageResolved, StageOf(&model.EmergencySession{Status: model.SessionResolved}, nil))
}

func TestGuards(t *testing.T) {
	alg := "labetalol"
	resolved := &model.EmergencySession{Status: model.SessionResolved}
	escalated := &model.EmergencySession{ID: "s1", Status: model.SessionEscalated}

	assert.NoError(t, CanSelectAlgorithm(activeSession("", 0)))
	assert.Equal(t, apperr.CodeNoActiveSession, apperr.CodeOf(CanSelectAlgorithm(nil)))
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(CanSelectAlgorithm(activeSession(alg, 0))))
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(CanSelectAlgorithm(resolved)))

	d, err := NextDose(activeSession(alg, 1))
	assert.NoError(t, err)
	assert.Equal(t, "40mg", d.Amount)
	_, err = NextDose(activeSession("", 0))
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(err))
	_, err = NextDose(activeSession(alg, 3))
	assert.Equal(t, apperr.CodeProtocolExhausted, apperr.CodeOf(err))

	sess := activeSession(alg, 1)
	dose := &model.MedicationDose{ID: "m1", EmergencySessionID: "s1", DoseNumber: 1}
	assert.NoError(t, CanAdminister(sess, dose))
	now := t0
	dose.AdministeredAt = &now
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.CodeOf(CanAdminister(sess, dose)))
	assert.Equal(t, apperr.CodeDoseNotFound, apperr.CodeOf(CanAdminister(sess, &model.MedicationDose{EmergencySessionID: "other"})))

	assert.NoError(t, CanAcknowledge(escalated))
	assert.Error(t, CanAcknowledge(activeSession(alg, 1)))
	assert.Error(t, CanAcknowledge(nil))

	assert.NoError(t, CanResolve(escalated))
	assert.NoError(t, CanResolve(activeSession("", 0)))
	assert.Error(t, CanResolve(resolved))
	assert.Error(t, CanResolve(nil))

	assert.NoError(t, CanEscalate(activeSession("", 0)))
	assert.Error(t, CanEscalate(escalated))
}

func TestNextAction(t *testing.T) {
	alg := "labetalol"
	assert.Contains(t, NextAction(StageFirstHigh, nil), "15 minutes")
	assert.Equal(t, "Select a medication algorithm.", NextAction(StageConfirmed, activeSession("", 0)))
	assert.Contains(t, NextAction(StageAlgorithmSelected, activeSession(alg, 0)), "Labetalol 20mg IV")
	assert.Contains(t, NextAction(StageTreating, activeSession(alg, 3)), "Protocol complete")

	by := "dr-house"
	escalated := &model.EmergencySession{Status: model.SessionEscalated, AcknowledgedBy: &by}
	assert.Contains(t, NextAction(StageEscalated, escalated), "dr-house")
}
