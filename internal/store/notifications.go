package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return wrap("insert notification", err)
	}
	patientID := ""
	if n.PatientID != nil {
		patientID = *n.PatientID
	}
	s.record(changefeed.TableNotifications, changefeed.EventInsert, n.ID, patientID)
	return nil
}

func (s *gormStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get notification %s", id), err)
	}
	return &n, nil
}

// ListNotifications returns notifications newest first.
func (s *gormStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.Role != "" {
		q = q.Where("(recipient_role = ? OR recipient_role IS NULL)", filter.Role)
	}
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.Unacknowledged {
		q = q.Where("acknowledged_at IS NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []model.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, wrap("list notifications", err)
	}
	return out, nil
}

// AcknowledgeNotification is idempotent: the first acknowledgement wins.
func (s *gormStore) AcknowledgeNotification(ctx context.Context, id, userID string, at time.Time) error {
	var n model.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return wrap(fmt.Sprintf("get notification %s", id), err)
	}
	if n.AcknowledgedAt != nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Updates(map[string]any{"acknowledged_at": at, "acknowledged_by": userID})
	if res.Error != nil {
		return wrap("acknowledge notification", res.Error)
	}
	patientID := ""
	if n.PatientID != nil {
		patientID = *n.PatientID
	}
	s.record(changefeed.TableNotifications, changefeed.EventUpdate, id, patientID)
	return nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "role", "user_id"}),
	}).Create(sub).Error; err != nil {
		return wrap("upsert subscription", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, wrap("get subscription", err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return wrap("delete subscription", err)
	}
	return nil
}

func (s *gormStore) SubscriptionsForRoles(ctx context.Context, roles []model.Role) ([]model.PushSubscription, error) {
	q := s.db.WithContext(ctx)
	if len(roles) > 0 {
		q = q.Where("role IN ?", roles)
	}
	var subs []model.PushSubscription
	if err := q.Find(&subs).Error; err != nil {
		return nil, wrap("list subscriptions", err)
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	return subs, nil
}

