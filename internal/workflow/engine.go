// Package workflow is the orchestrator of hypertensive emergency cases. Every patient has
// one Case; its operations load state, ask the session machine for a decision, persist
// the result in a single transaction and dispatch notifications after commit.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/metrics"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/notification"
	"postpartum-htn-backend/internal/session"
	"postpartum-htn-backend/internal/store"
	"postpartum-htn-backend/internal/timer"
)

// Actor is the authenticated clinician performing an operation.
type Actor struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
}

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	MinConfirmationGap time.Duration
	// PollInterval is how often observers look for expired timers.
	PollInterval time.Duration
	// AckRetention bounds how long an observer remembers announced expiries.
	AckRetention time.Duration
	// CaseRetention is how long an idle Case stays cached.
	CaseRetention time.Duration
	Now           func() time.Time
}

// Engine owns the collaborators shared by every case.
type Engine struct {
	store      store.Store
	timers     *timer.Manager
	machine    *session.Machine
	dispatcher notification.Dispatcher
	broker     *changefeed.Broker
	logger     *zap.Logger
	now        func() time.Time

	pollInterval time.Duration
	ackRetention time.Duration

	cases *cache.Cache

	lockMu sync.Mutex
	locks  map[string]*caseLock
}

type caseLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates an engine. broker may be nil, in which case Focus is unavailable.
func NewEngine(s store.Store, d notification.Dispatcher, broker *changefeed.Broker, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.AckRetention <= 0 {
		opts.AckRetention = 2 * time.Hour
	}
	if opts.CaseRetention <= 0 {
		opts.CaseRetention = 30 * time.Minute
	}

	return &Engine{
		store:        s,
		timers:       timer.NewManager(s, logger, now),
		machine:      session.NewMachine(opts.MinConfirmationGap),
		dispatcher:   d,
		broker:       broker,
		logger:       logger,
		now:          now,
		pollInterval: opts.PollInterval,
		ackRetention: opts.AckRetention,
		cases:        cache.New(opts.CaseRetention, 2*opts.CaseRetention),
		locks:        make(map[string]*caseLock),
	}
}

// Case returns the orchestrator of one patient. Once the patient has been seen in the
// store, the same instance is returned until it sits idle for Options.CaseRetention.
func (e *Engine) Case(patientID string) *Case {
	if v, ok := e.cases.Get(patientID); ok {
		e.cases.Set(patientID, v, cache.DefaultExpiration)
		return v.(*Case)
	}
	return &Case{engine: e, patientID: patientID}
}

// remember caches c after its patient was found. An instance cached earlier wins.
func (e *Engine) remember(c *Case) {
	_ = e.cases.Add(c.patientID, c, cache.DefaultExpiration)
}

// lock serializes operations on one patient across every Case value for it. The entry
// lives only while someone holds or waits for it.
func (e *Engine) lock(patientID string) func() {
	e.lockMu.Lock()
	l, ok := e.locks[patientID]
	if !ok {
		l = &caseLock{}
		e.locks[patientID] = l
	}
	l.refs++
	e.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		e.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, patientID)
		}
		e.lockMu.Unlock()
	}
}

// Case serializes the operations of one patient.
type Case struct {
	engine    *Engine
	patientID string
}

// PatientID returns the id of the patient this case belongs to.
func (c *Case) PatientID() string {
	return c.patientID
}

// Outcome reports what an operation did.
type Outcome struct {
	Patient    *model.Patient              `json:"patient"`
	Session    *model.EmergencySession     `json:"session,omitempty"`
	Reading    *model.BloodPressureReading `json:"reading,omitempty"`
	Dose       *model.MedicationDose       `json:"dose,omitempty"`
	Timer      *model.Timer                `json:"timer,omitempty"`
	Category   string                      `json:"category,omitempty"`
	Transition session.Transition          `json:"transition,omitempty"`
	Stage      session.Stage               `json:"stage"`
	Warnings   []string                    `json:"warnings,omitempty"`
	Notices    []notification.Request      `json:"notifications,omitempty"`
}

// op is the state of one operation inside its transaction.
type op struct {
	ctx     context.Context
	store   store.Store
	timers  *timer.Manager
	actor   Actor
	now     time.Time
	patient *model.Patient
	out     *Outcome
	audit   []model.AuditLog
	notices []notification.Request
	logger  *zap.Logger
}

func (o *op) record(action string, details map[string]any) {
	o.audit = append(o.audit, model.NewAuditLog(o.now, o.actor.ID, action, o.patient.ID, details))
}

func (o *op) notify(req notification.Request) {
	if req.At.IsZero() {
		req.At = o.now
	}
	o.notices = append(o.notices, req)
}

// openSession loads the session the patient points at, or nil when it is missing or
// already closed.
func (o *op) openSession() (*model.EmergencySession, error) {
	if o.patient.CurrentEmergencySessionID == nil {
		return nil, nil
	}
	id := *o.patient.CurrentEmergencySessionID
	s, err := o.store.GetSession(o.ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		metrics.RecordIntegrityWarning("dangling_session_pointer")
		o.logger.Warn("data integrity: patient points at missing session",
			zap.String("patient_id", o.patient.ID), zap.String("session_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.Open() {
		metrics.RecordIntegrityWarning("closed_session_pointer")
		o.logger.Warn("data integrity: patient points at closed session",
			zap.String("patient_id", o.patient.ID), zap.String("session_id", id), zap.String("status", string(s.Status)))
		return nil, nil
	}
	return s, nil
}

func (o *op) requireOpenSession() (*model.EmergencySession, error) {
	s, err := o.openSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperr.Precondition(apperr.CodeNoActiveSession, "patient %s has no open emergency session", o.patient.ID)
	}
	return s, nil
}

func (o *op) startTimer(typ model.TimerType, wait time.Duration) (*model.Timer, error) {
	var (
		t   *model.Timer
		err error
	)
	switch typ {
	case model.TimerAdministrationDeadline:
		t, err = o.timers.CreateAdministrationDeadline(o.ctx, o.patient.ID)
	case model.TimerMedicationWait:
		t, err = o.timers.CreateMedicationWait(o.ctx, o.patient.ID, wait)
	default:
		t, err = o.timers.CreateRecheck(o.ctx, o.patient.ID)
	}
	if err != nil {
		return nil, err
	}
	o.out.Timer = t
	o.notify(timer.Notice(t, o.patient))
	return t, nil
}

// run executes fn for this case inside one transaction. Nothing is dispatched or
// returned as an outcome unless the transaction commits.
func (c *Case) run(ctx context.Context, actor Actor, name string, fn func(*op) error) (*Outcome, error) {
	if actor.ID == "" {
		return nil, apperr.Precondition(apperr.CodeMissingActor, "%s: no authenticated actor", name)
	}

	e := c.engine
	defer e.lock(c.patientID)()

	o := &op{
		ctx:    ctx,
		actor:  actor,
		now:    e.now(),
		out:    &Outcome{},
		logger: e.logger,
	}

	err := e.store.Tx(ctx, func(tx store.Store) error {
		o.store = tx
		o.timers = e.timers.With(tx)

		p, err := tx.GetPatient(ctx, c.patientID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Precondition(apperr.CodePatientNotFound, "patient %s not found", c.patientID)
		}
		if err != nil {
			return err
		}
		o.patient = p

		if err := fn(o); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, o.audit...)
	})
	if err != nil {
		e.logger.Info("operation rejected",
			zap.String("operation", name),
			zap.String("patient_id", c.patientID),
			zap.String("actor", actor.ID),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err))
		return nil, err
	}

	e.remember(c)
	o.out.Patient = o.patient
	o.out.Notices = o.notices
	e.dispatch(ctx, o.notices)
	return o.out, nil
}

// dispatch sends notifications of a committed operation. Delivery failures are logged
// and never undo the operation.
func (e *Engine) dispatch(ctx context.Context, reqs []notification.Request) {
	if e.dispatcher == nil || len(reqs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := notification.DispatchAll(ctx, e.dispatcher, reqs); err != nil {
		e.logger.Warn("notification dispatch failed", zap.Int("count", len(reqs)), zap.Error(err))
	}
}
