package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"postpartum-htn-backend/internal/metrics"
	"postpartum-htn-backend/internal/model"
	"postpartum-htn-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool persists every notification and pushes it to the subscribed devices of
// the recipient roles in the background.
type WorkerPool struct {
	size    int
	jobs    chan Request
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
	now     func() time.Time
}

// NewWorkerPool creates a new worker pool. A nil webpushOptions disables push delivery.
func NewWorkerPool(size, queueSize int, s store.Store, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Request, queueSize),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("notification worker started")
	for {
		select {
		case req := <-wp.jobs:
			wp.push(ctx, req)
		case <-ctx.Done():
			log.Debug("notification worker shutting down")
			return
		}
	}
}

// Notify stores one notification row per recipient role (a single row for a
// broadcast) and queues the push delivery.
func (wp *WorkerPool) Notify(ctx context.Context, req Request) error {
	if req.At.IsZero() {
		req.At = wp.now()
	}

	if err := wp.persist(ctx, req); err != nil {
		metrics.RecordNotification(string(req.Priority), "persist_failed")
		return err
	}

	select {
	case wp.jobs <- req:
		metrics.RecordNotification(string(req.Priority), "queued")
		return nil
	case <-ctx.Done():
		metrics.RecordNotification(string(req.Priority), "dropped")
		return fmt.Errorf("queue notification %s: %w", req.Event, ctx.Err())
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Request {
	return wp.jobs
}

func (wp *WorkerPool) persist(ctx context.Context, req Request) error {
	var patientID *string
	if req.PatientID != "" {
		id := req.PatientID
		patientID = &id
	}

	rows := make([]*model.Notification, 0, len(req.Roles)+1)
	if req.Broadcast() {
		rows = append(rows, &model.Notification{})
	}
	for _, role := range req.Roles {
		r := role
		rows = append(rows, &model.Notification{RecipientRole: &r})
	}

	return wp.store.Tx(ctx, func(tx store.Store) error {
		for _, n := range rows {
			n.Type = req.Priority
			n.Event = string(req.Event)
			n.Title = req.Title
			n.Message = req.Message
			n.PatientID = patientID
			n.CreatedAt = req.At
			if err := tx.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (wp *WorkerPool) push(ctx context.Context, req Request) {
	if wp.webpush == nil || wp.webpush.VAPIDPrivateKey == "" {
		return
	}

	subscriptions, err := wp.store.SubscriptionsForRoles(ctx, req.Roles)
	if err != nil {
		wp.logger.Error("failed to load push subscriptions", zap.String("event", string(req.Event)), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		wp.logger.Error("failed to encode push payload", zap.Error(err))
		return
	}

	wp.logger.Info("sending push notifications",
		zap.String("event", string(req.Event)),
		zap.String("priority", string(req.Priority)),
		zap.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.RecordPushDelivery("error")
		wp.logger.Warn("push delivery failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	metrics.RecordPushDelivery(http.StatusText(resp.StatusCode))

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("push subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Warn("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
