package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/timer"
)

// ErrNoBroker is returned by Focus on an engine built without a change broker.
var ErrNoBroker = errors.New("engine has no change broker")

// Observer follows one session. Every change signal triggers a full re-derivation of
// the case view; expired timers are reported once each.
type Observer struct {
	engine    *Engine
	sessionID string
	patientID string
	sub       *changefeed.Subscription
	acks      *timer.AckSet

	updates chan *View
	expired chan model.Timer

	mu      sync.RWMutex
	current *View

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Focus attaches an observer to an existing session. The observer lives until
// Unfocus is called.
func (e *Engine) Focus(ctx context.Context, sessionID string) (*Observer, error) {
	if e.broker == nil {
		return nil, fmt.Errorf("focus: %w", ErrNoBroker)
	}
	sess, err := e.store.GetSession(ctx, sessionID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Precondition(apperr.CodeSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}

	o := &Observer{
		engine:    e,
		sessionID: sess.ID,
		patientID: sess.PatientID,
		sub:       e.broker.Subscribe(sess.PatientID),
		acks:      timer.NewAckSet(e.ackRetention),
		updates:   make(chan *View, 1),
		expired:   make(chan model.Timer, 8),
		done:      make(chan struct{}),
	}

	view, err := e.Case(sess.PatientID).View(ctx)
	if err != nil {
		e.broker.Unsubscribe(o.sub)
		return nil, err
	}
	o.current = view

	loopCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	go o.loop(loopCtx)

	e.logger.Debug("session focused", zap.String("session_id", o.sessionID), zap.String("patient_id", o.patientID))
	return o, nil
}

// SessionID returns the observed session.
func (o *Observer) SessionID() string {
	return o.sessionID
}

// Updates delivers re-derived views. Only the newest undelivered view is kept.
func (o *Observer) Updates() <-chan *View {
	return o.updates
}

// Expirations delivers each expired timer once.
func (o *Observer) Expirations() <-chan model.Timer {
	return o.expired
}

// Current returns the latest derived view, or nil after Unfocus.
func (o *Observer) Current() *View {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Unfocus detaches the observer and drops all derived state. Safe to call twice.
func (o *Observer) Unfocus() {
	o.once.Do(func() {
		o.cancel()
		<-o.done
		o.engine.broker.Unsubscribe(o.sub)
		o.acks.Reset()

		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()

		o.engine.logger.Debug("session unfocused", zap.String("session_id", o.sessionID))
	})
}

func (o *Observer) loop(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.engine.pollInterval)
	defer ticker.Stop()

	o.checkExpiry(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-o.sub.C():
			if !ok {
				return
			}
			o.refresh(ctx)
		case <-ticker.C:
			o.checkExpiry(ctx)
		}
	}
}

// Refresh re-derives the view immediately.
func (o *Observer) Refresh(ctx context.Context) (*View, error) {
	view, err := o.engine.Case(o.patientID).View(ctx)
	if err != nil {
		return nil, err
	}
	o.publish(view)
	return view, nil
}

func (o *Observer) refresh(ctx context.Context) {
	if _, err := o.Refresh(ctx); err != nil && ctx.Err() == nil {
		o.engine.logger.Warn("failed to refresh observed case", zap.String("session_id", o.sessionID), zap.Error(err))
		return
	}
	o.checkExpiry(ctx)
}

func (o *Observer) publish(view *View) {
	o.mu.Lock()
	o.current = view
	o.mu.Unlock()

	for {
		select {
		case o.updates <- view:
			return
		default:
		}
		select {
		case <-o.updates:
		default:
		}
	}
}

// checkExpiry reports the active timer of the current view once it has expired. The
// view may lag behind the store, so the timer is re-read before it is announced.
func (o *Observer) checkExpiry(ctx context.Context) {
	view := o.Current()
	if view == nil || view.ActiveTimer == nil {
		return
	}
	id := view.ActiveTimer.ID
	if !timer.Expired(view.ActiveTimer, o.engine.now()) || o.acks.Seen(id) {
		return
	}

	t, err := o.engine.store.GetTimer(ctx, id)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, apperr.ErrNotFound) {
			o.engine.logger.Warn("failed to reload expired timer", zap.String("timer_id", id), zap.Error(err))
		}
		return
	}
	if !t.IsActive || !o.acks.MarkOnce(t.ID) {
		return
	}
	select {
	case o.expired <- *t:
	default:
		o.acks.Forget(t.ID)
	}
}
