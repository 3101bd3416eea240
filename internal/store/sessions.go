package store

import (
	"context"
	"fmt"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) InsertSession(ctx context.Context, sess *model.EmergencySession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return wrap("insert session", err)
	}
	s.record(changefeed.TableSessions, changefeed.EventInsert, sess.ID, sess.PatientID)
	return nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*model.EmergencySession, error) {
	var sess model.EmergencySession
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get session %s", id), err)
	}
	return &sess, nil
}

// UpdateSession writes the mutable fields if the row still has sess.Version, then
// bumps sess.Version.
func (s *gormStore) UpdateSession(ctx context.Context, sess *model.EmergencySession) error {
	res := s.db.WithContext(ctx).Model(&model.EmergencySession{}).
		Where("id = ? AND version = ?", sess.ID, sess.Version).
		Updates(map[string]any{
			"algorithm_selected": sess.AlgorithmSelected,
			"current_step":       sess.CurrentStep,
			"status":             sess.Status,
			"resolved_at":        sess.ResolvedAt,
			"escalated_at":       sess.EscalatedAt,
			"acknowledged_at":    sess.AcknowledgedAt,
			"acknowledged_by":    sess.AcknowledgedBy,
			"version":            sess.Version + 1,
		})
	if res.Error != nil {
		return wrap("update session", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Store("update session", fmt.Errorf("session %s at version %d: %w", sess.ID, sess.Version, apperr.ErrVersionConflict))
	}
	sess.Version++
	s.record(changefeed.TableSessions, changefeed.EventUpdate, sess.ID, sess.PatientID)
	return nil
}

func (s *gormStore) ListSessions(ctx context.Context, patientID string) ([]model.EmergencySession, error) {
	var sessions []model.EmergencySession
	if err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("initiated_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, wrap("list sessions", err)
	}
	return sessions, nil
}
