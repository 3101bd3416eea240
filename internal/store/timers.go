package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) InsertTimer(ctx context.Context, t *model.Timer) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return wrap("insert timer", err)
	}
	s.record(changefeed.TableTimers, changefeed.EventInsert, t.ID, t.PatientID)
	return nil
}

func (s *gormStore) GetTimer(ctx context.Context, id string) (*model.Timer, error) {
	var t model.Timer
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get timer %s", id), err)
	}
	return &t, nil
}

// ActiveTimers returns the active timers of a patient, soonest expiry first.
func (s *gormStore) ActiveTimers(ctx context.Context, patientID string) ([]model.Timer, error) {
	var timers []model.Timer
	if err := s.db.WithContext(ctx).
		Where("patient_id = ? AND is_active = ?", patientID, true).
		Order("expires_at ASC").
		Find(&timers).Error; err != nil {
		return nil, wrap("list active timers", err)
	}
	return timers, nil
}

// AllActiveTimers returns every active timer, soonest expiry first.
func (s *gormStore) AllActiveTimers(ctx context.Context) ([]model.Timer, error) {
	var timers []model.Timer
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("expires_at ASC").
		Find(&timers).Error; err != nil {
		return nil, wrap("list all active timers", err)
	}
	return timers, nil
}

// DeactivateTimer is a no-op for inactive or unknown timers.
func (s *gormStore) DeactivateTimer(ctx context.Context, id string) error {
	var t model.Timer
	if err := s.db.WithContext(ctx).Select("id", "patient_id").First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return wrap(fmt.Sprintf("get timer %s", id), err)
	}
	res := s.db.WithContext(ctx).Model(&model.Timer{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return wrap("deactivate timer", res.Error)
	}
	if res.RowsAffected > 0 {
		s.record(changefeed.TableTimers, changefeed.EventUpdate, id, t.PatientID)
	}
	return nil
}

// DeactivateTimers deactivates every active timer of a patient and returns how many
// were active.
func (s *gormStore) DeactivateTimers(ctx context.Context, patientID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Timer{}).
		Where("patient_id = ? AND is_active = ?", patientID, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, wrap("deactivate timers", res.Error)
	}
	if res.RowsAffected > 0 {
		s.record(changefeed.TableTimers, changefeed.EventUpdate, "", patientID)
	}
	return res.RowsAffected, nil
}
