package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

// Store defines the interface for all database operations.
//
// Not-found lookups return an error wrapping apperr.ErrNotFound; every other failure is
// an apperr Store error.
type Store interface {
	// Tx runs fn atomically. Changes are published only after commit. Nested calls
	// join the outer transaction.
	Tx(ctx context.Context, fn func(Store) error) error

	CreatePatient(ctx context.Context, p *model.Patient) error
	GetPatient(ctx context.Context, id string) (*model.Patient, error)
	ListPatients(ctx context.Context, filter PatientFilter) ([]model.Patient, error)
	SetPatientSession(ctx context.Context, patientID string, sessionID *string) error

	InsertReading(ctx context.Context, r *model.BloodPressureReading) error
	LatestReadings(ctx context.Context, patientID string, limit int) ([]model.BloodPressureReading, error)

	InsertSession(ctx context.Context, s *model.EmergencySession) error
	GetSession(ctx context.Context, id string) (*model.EmergencySession, error)
	UpdateSession(ctx context.Context, s *model.EmergencySession) error
	ListSessions(ctx context.Context, patientID string) ([]model.EmergencySession, error)

	InsertMedication(ctx context.Context, m *model.MedicationDose) error
	GetMedication(ctx context.Context, id string) (*model.MedicationDose, error)
	MarkAdministered(ctx context.Context, m *model.MedicationDose) error
	ListMedications(ctx context.Context, sessionID string) ([]model.MedicationDose, error)

	InsertTimer(ctx context.Context, t *model.Timer) error
	GetTimer(ctx context.Context, id string) (*model.Timer, error)
	ActiveTimers(ctx context.Context, patientID string) ([]model.Timer, error)
	AllActiveTimers(ctx context.Context) ([]model.Timer, error)
	DeactivateTimer(ctx context.Context, id string) error
	DeactivateTimers(ctx context.Context, patientID string) (int64, error)

	AppendAudit(ctx context.Context, entries ...model.AuditLog) error
	ListAudit(ctx context.Context, patientID string, limit int) ([]model.AuditLog, error)

	InsertNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	AcknowledgeNotification(ctx context.Context, id, userID string, at time.Time) error

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForRoles(ctx context.Context, roles []model.Role) ([]model.PushSubscription, error)
}

// PatientFilter narrows ListPatients.
type PatientFilter struct {
	EmergencyOnly bool
}

// NotificationFilter narrows ListNotifications. An empty Role matches every row;
// a set Role also matches broadcasts.
type NotificationFilter struct {
	Role           model.Role
	PatientID      string
	Unacknowledged bool
	Limit          int
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db      *gorm.DB
	feed    changefeed.Publisher
	logger  *zap.Logger
	pending *[]changefeed.Change // non-nil inside Tx
}

// NewGormStore creates a new GORM-backed store. feed may be nil.
func NewGormStore(db *gorm.DB, feed changefeed.Publisher, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gormStore{db: db, feed: feed, logger: logger}
}

func (s *gormStore) Tx(ctx context.Context, fn func(Store) error) error {
	if s.pending != nil {
		return fn(s)
	}

	var pending []changefeed.Change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, feed: s.feed, logger: s.logger, pending: &pending})
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		return apperr.Store("transaction", err)
	}

	s.publish(ctx, pending...)
	return nil
}

func (s *gormStore) record(table string, event changefeed.Event, rowID, patientID string) {
	c := changefeed.NewChange(table, event, rowID, patientID, time.Now().UTC())
	if s.pending != nil {
		*s.pending = append(*s.pending, c)
		return
	}
	s.publish(context.Background(), c)
}

func (s *gormStore) publish(ctx context.Context, changes ...changefeed.Change) {
	if s.feed == nil || len(changes) == 0 {
		return
	}
	if err := s.feed.Publish(ctx, changes...); err != nil {
		s.logger.Warn("failed to publish store changes", zap.Int("count", len(changes)), zap.Error(err))
	}
}

// wrap converts gorm's not-found error into apperr.ErrNotFound and classifies the rest
// as store failures.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return apperr.Store(op, err)
}
