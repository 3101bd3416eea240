package timer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/metrics"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/notification"
	"postpartum-htn-backend/internal/store"
)

// Watcher polls every active timer and announces each expiry once.
type Watcher struct {
	interval   time.Duration
	store      store.Store
	dispatcher notification.Dispatcher
	acks       *AckSet
	now        func() time.Time
	logger     *zap.Logger
}

// NewWatcher creates a watcher polling at interval.
func NewWatcher(interval time.Duration, s store.Store, d notification.Dispatcher, acks *AckSet, now func() time.Time, logger *zap.Logger) *Watcher {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Watcher{
		interval:   interval,
		store:      s,
		dispatcher: d,
		acks:       acks,
		now:        now,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("timer watcher started", zap.Duration("interval", w.interval))

	w.CheckOnce(ctx)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("timer watcher shutting down")
			return
		case <-timer.C:
			w.CheckOnce(ctx)
			timer.Reset(w.interval)
		}
	}
}

// CheckOnce announces every newly expired timer and returns how many fired.
func (w *Watcher) CheckOnce(ctx context.Context) int {
	timers, err := w.store.AllActiveTimers(ctx)
	if err != nil {
		w.logger.Error("failed to load active timers", zap.Error(err))
		return 0
	}

	now := w.now()
	fired := 0
	for i := range timers {
		t := &timers[i]
		if !Expired(t, now) || !w.acks.MarkOnce(t.ID) {
			continue
		}

		patient, err := w.store.GetPatient(ctx, t.PatientID)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				w.acks.Forget(t.ID)
				w.logger.Error("failed to load patient for expired timer", zap.String("timer_id", t.ID), zap.Error(err))
				continue
			}
			patient = &model.Patient{ID: t.PatientID, AnonymousIdentifier: t.PatientID}
		}

		if err := w.dispatcher.Notify(ctx, ExpiryNotice(t, patient)); err != nil {
			w.acks.Forget(t.ID)
			w.logger.Warn("failed to announce expired timer", zap.String("timer_id", t.ID), zap.Error(err))
			continue
		}

		metrics.RecordTimerExpired(string(t.Type))
		w.logger.Info("timer expired",
			zap.String("patient_id", t.PatientID),
			zap.String("timer_id", t.ID),
			zap.String("type", string(t.Type)),
			zap.Duration("overdue", -Remaining(t, now)))
		fired++
	}
	return fired
}
