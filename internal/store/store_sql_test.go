package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"postpartum-htn-backend/internal/apperr"
	"postpartum-htn-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_UpdateSession_SQL(t *testing.T) {
	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedVersion  int
		expectConflict   bool
		expectStoreErr   bool
	}{
		{
			name: "Version matches, row updated",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "emergency_sessions" SET .*"version"=.* WHERE .*id = .*version = `).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedVersion: 4,
		},
		{
			name: "Stale version, nothing updated",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "emergency_sessions" SET`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
			expectedVersion: 3,
			expectConflict:  true,
			expectStoreErr:  true,
		},
		{
			name: "Database failure",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE "emergency_sessions" SET`).
					WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			expectedVersion: 3,
			expectStoreErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			s := NewGormStore(gormDB, nil, zap.NewNop())
			tc.mockExpectations(mock)

			sess := &model.EmergencySession{ID: "s1", PatientID: "p1", Status: model.SessionActive, Version: 3, InitiatedAt: time.Now()}
			err := s.UpdateSession(context.Background(), sess)

			if tc.expectStoreErr {
				assert.True(t, apperr.IsStore(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectConflict, errors.Is(err, apperr.ErrVersionConflict))
			assert.Equal(t, tc.expectedVersion, sess.Version)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_DeactivateTimers_SQL(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB, nil, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "timers" SET "is_active"=\$1 WHERE patient_id = \$2 AND is_active = \$3`).
		WithArgs(false, "p1", true).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.DeactivateTimers(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
