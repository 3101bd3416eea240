// Package timer manages the persisted clinical deadlines of a patient.
//
// A patient has at most one active timer: creating a timer supersedes every earlier
// active one. Expiry is never stored; it is computed from ExpiresAt when read.
package timer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"postpartum-htn-backend/internal/clinical"
	"postpartum-htn-backend/internal/metrics"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/notification"
	"postpartum-htn-backend/internal/store"
)

// Manager creates, stops and looks up timers.
type Manager struct {
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewManager creates a manager. now defaults to time.Now in UTC.
func NewManager(s store.Store, logger *zap.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{store: s, now: now, logger: logger}
}

// With returns a manager that works through s, typically a transaction.
func (m *Manager) With(s store.Store) *Manager {
	cp := *m
	cp.store = s
	return &cp
}

// CreateRecheck starts the confirmatory-reading timer.
func (m *Manager) CreateRecheck(ctx context.Context, patientID string) (*model.Timer, error) {
	return m.create(ctx, patientID, model.TimerBPRecheck, clinical.RecheckInterval)
}

// CreateAdministrationDeadline starts the first-dose deadline.
func (m *Manager) CreateAdministrationDeadline(ctx context.Context, patientID string) (*model.Timer, error) {
	return m.create(ctx, patientID, model.TimerAdministrationDeadline, clinical.AdministrationDeadline)
}

// CreateMedicationWait starts the post-dose wait of the given length.
func (m *Manager) CreateMedicationWait(ctx context.Context, patientID string, wait time.Duration) (*model.Timer, error) {
	if wait <= 0 {
		return nil, fmt.Errorf("medication wait must be positive, got %s", wait)
	}
	return m.create(ctx, patientID, model.TimerMedicationWait, wait)
}

func (m *Manager) create(ctx context.Context, patientID string, typ model.TimerType, d time.Duration) (*model.Timer, error) {
	now := m.now()
	t := &model.Timer{
		PatientID:       patientID,
		Type:            typ,
		StartedAt:       now,
		DurationMinutes: int(d / time.Minute),
		ExpiresAt:       now.Add(d),
		IsActive:        true,
	}

	err := m.store.Tx(ctx, func(tx store.Store) error {
		superseded, err := tx.DeactivateTimers(ctx, patientID)
		if err != nil {
			return err
		}
		if superseded > 0 {
			m.logger.Debug("superseded active timers", zap.String("patient_id", patientID), zap.Int64("count", superseded))
		}
		return tx.InsertTimer(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTimerCreated(string(typ))
	m.logger.Info("timer started",
		zap.String("patient_id", patientID),
		zap.String("timer_id", t.ID),
		zap.String("type", string(typ)),
		zap.Time("expires_at", t.ExpiresAt))
	return t, nil
}

// Deactivate stops one timer. Stopping an inactive timer is a no-op.
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	return m.store.DeactivateTimer(ctx, id)
}

// DeactivateAll stops every active timer of a patient.
func (m *Manager) DeactivateAll(ctx context.Context, patientID string) (int64, error) {
	return m.store.DeactivateTimers(ctx, patientID)
}

// Active returns the patient's active timer, or nil. If several are active the one
// expiring soonest is returned and the inconsistency is reported.
func (m *Manager) Active(ctx context.Context, patientID string) (*model.Timer, error) {
	timers, err := m.store.ActiveTimers(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(timers) == 0 {
		return nil, nil
	}
	if len(timers) > 1 {
		metrics.RecordIntegrityWarning("multiple_active_timers")
		m.logger.Warn("data integrity: multiple active timers",
			zap.String("patient_id", patientID),
			zap.Int("count", len(timers)))
	}
	return &timers[0], nil
}

// Remaining is the time left until t expires; negative when overdue.
func Remaining(t *model.Timer, now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// Expired reports whether an active timer has run out. Both the deadline and the
// elapsed duration must agree, which guards against clock adjustments between writer
// and reader.
func Expired(t *model.Timer, now time.Time) bool {
	if t == nil || !t.IsActive {
		return false
	}
	return !now.Before(t.ExpiresAt) && now.Sub(t.StartedAt) >= t.Duration()
}

// Notice is the notification emitted when t is created.
func Notice(t *model.Timer, p *model.Patient) notification.Request {
	switch t.Type {
	case model.TimerAdministrationDeadline:
		return notification.AdministrationDeadlineStarted(p, t.ExpiresAt)
	case model.TimerMedicationWait:
		return notification.MedicationWaitStarted(p, t.Duration(), t.ExpiresAt)
	default:
		return notification.RecheckStarted(p, t.ExpiresAt)
	}
}

// ExpiryNotice is the notification emitted once when t is observed expired.
func ExpiryNotice(t *model.Timer, p *model.Patient) notification.Request {
	switch t.Type {
	case model.TimerAdministrationDeadline:
		return notification.AdministrationOverdue(p)
	case model.TimerMedicationWait:
		return notification.MedicationWaitComplete(p)
	default:
		return notification.RecheckDue(p)
	}
}
