package store

import (
	"context"

	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) AppendAudit(ctx context.Context, entries ...model.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return wrap("append audit", err)
	}
	return nil
}

// ListAudit returns a patient's audit trail, newest first.
func (s *gormStore) ListAudit(ctx context.Context, patientID string, limit int) ([]model.AuditLog, error) {
	q := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []model.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, wrap("list audit", err)
	}
	return entries, nil
}
