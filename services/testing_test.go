package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/varnstead/gatewall/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.RequestEvent{}, &model.SystemState{}))
	return db
}

func newTestSqlite(t *testing.T) *SqliteService {
	t.Helper()
	return &SqliteService{db: newTestDB(t)}
}

// newTestEventStore wires an event store over an in-memory database.
func newTestEventStore(t *testing.T) *EventStoreService {
	t.Helper()
	return &EventStoreService{sqlSvc: newTestSqlite(t)}
}

// newTestCounter has no live Redis client, so every call exercises the
// store-fallback path deterministically.
func newTestCounter(eventSvc *EventStoreService) *RateCounterService {
	return &RateCounterService{
		cache:    &RedisService{},
		eventSvc: eventSvc,
	}
}
