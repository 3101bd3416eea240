package store

import (
	"context"
	"fmt"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/model"
)

func (s *gormStore) CreatePatient(ctx context.Context, p *model.Patient) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return wrap("create patient", err)
	}
	s.record(changefeed.TablePatients, changefeed.EventInsert, p.ID, p.ID)
	return nil
}

func (s *gormStore) GetPatient(ctx context.Context, id string) (*model.Patient, error) {
	var p model.Patient
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrap(fmt.Sprintf("get patient %s", id), err)
	}
	return &p, nil
}

func (s *gormStore) ListPatients(ctx context.Context, filter PatientFilter) ([]model.Patient, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if filter.EmergencyOnly {
		q = q.Where("current_emergency_session_id IS NOT NULL")
	}
	var patients []model.Patient
	if err := q.Find(&patients).Error; err != nil {
		return nil, wrap("list patients", err)
	}
	return patients, nil
}

func (s *gormStore) SetPatientSession(ctx context.Context, patientID string, sessionID *string) error {
	res := s.db.WithContext(ctx).Model(&model.Patient{}).
		Where("id = ?", patientID).
		Update("current_emergency_session_id", sessionID)
	if res.Error != nil {
		return wrap("set patient session", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set patient session %s: %w", patientID, apperr.ErrNotFound)
	}
	s.record(changefeed.TablePatients, changefeed.EventUpdate, patientID, patientID)
	return nil
}
