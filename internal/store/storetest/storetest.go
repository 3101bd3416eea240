// Package storetest opens isolated in-memory stores for tests.
package storetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"postpartum-htn-backend/internal/changefeed"
	"postpartum-htn-backend/internal/db"
	"postpartum-htn-backend/internal/store"
)

// NewDB opens a private in-memory SQLite database with the schema applied.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// New returns a store over a fresh database, publishing to feed (which may be nil).
func New(t *testing.T, feed changefeed.Publisher) (store.Store, *gorm.DB) {
	t.Helper()
	gormDB := NewDB(t)
	return store.NewGormStore(gormDB, feed, zap.NewNop()), gormDB
}
