package store

import (
	"context"
	"fmt"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) InsertMedication(ctx context.Context, m *model.MedicationDose) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return wrap("insert medication", err)
	}
	s.record(changefeed.TableMedications, changefeed.EventInsert, m.ID, m.PatientID)
	return nil
}

func (s *gormStore) GetMedication(ctx context.Context, id string) (*model.MedicationDose, error) {
	var m model.MedicationDose
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get medication %s", id), err)
	}
	return &m, nil
}

// MarkAdministered records administration once. A dose that is already administered
// yields a version conflict.
func (s *gormStore) MarkAdministered(ctx context.Context, m *model.MedicationDose) error {
	res := s.db.WithContext(ctx).Model(&model.MedicationDose{}).
		Where("id = ? AND administered_at IS NULL", m.ID).
		Updates(map[string]any{
			"administered_by":  m.AdministeredBy,
			"administered_at":  m.AdministeredAt,
			"next_bp_check_at": m.NextBPCheckAt,
		})
	if res.Error != nil {
		return wrap("mark administered", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Store("mark administered", fmt.Errorf("medication %s: %w", m.ID, apperr.ErrVersionConflict))
	}
	s.record(changefeed.TableMedications, changefeed.EventUpdate, m.ID, m.PatientID)
	return nil
}

// ListMedications returns the doses of a session in dose order.
func (s *gormStore) ListMedications(ctx context.Context, sessionID string) ([]model.MedicationDose, error) {
	var meds []model.MedicationDose
	if err := s.db.WithContext(ctx).
		Where("emergency_session_id = ?", sessionID).
		Order("dose_number ASC").
		Find(&meds).Error; err != nil {
		return nil, wrap("list medications", err)
	}
	return meds, nil
}
