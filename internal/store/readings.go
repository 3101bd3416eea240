package store

import (
	"context"

	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) InsertReading(ctx context.Context, r *model.BloodPressureReading) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return wrap("insert reading", err)
	}
	s.record(changefeed.TableReadings, changefeed.EventInsert, r.ID, r.PatientID)
	return nil
}

// LatestReadings returns up to limit readings, newest first.
func (s *gormStore) LatestReadings(ctx context.Context, patientID string, limit int) ([]model.BloodPressureReading, error) {
	q := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var readings []model.BloodPressureReading
	if err := q.Find(&readings).Error; err != nil {
		return nil, wrap("list readings", err)
	}
	return readings, nil
}
