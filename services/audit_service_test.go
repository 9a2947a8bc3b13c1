package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuditTest(t *testing.T) (*gorm.DB, *AuditService) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&AuditLog{}))
	return db, NewAuditService(db, nil)
}

func TestAuditLogAndFilter(t *testing.T) {
	db, as := setupAuditTest(t)

	tabletID := uint(7)
	require.NoError(t, as.LogSuccess(AuditContext{
		Actor:      "atendente",
		Action:     ActionAssignmentOpen,
		Resource:   "assignment",
		ResourceID: &tabletID,
		Details:    map[string]interface{}{"tablet_id": 7},
	}))
	require.NoError(t, as.LogFailure(AuditContext{
		Actor:    "system",
		Action:   ActionImportRun,
		Resource: "import",
	}, assert.AnError))

	var total int64
	require.NoError(t, db.Model(&AuditLog{}).Count(&total).Error)
	assert.Equal(t, int64(2), total)

	// Filter by action
	logs, err := as.GetAuditLogs(AuditFilters{Action: string(ActionAssignmentOpen)})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "atendente", logs[0].Actor)
	assert.True(t, logs[0].Success)
	assert.Contains(t, logs[0].Details, "tablet_id")

	// Filter by outcome
	failed := false
	logs, err = as.GetAuditLogs(AuditFilters{Success: &failed})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(ActionImportRun), logs[0].Action)
	assert.NotEmpty(t, logs[0].ErrorMsg)
}

func TestAuditCleanupOldLogs(t *testing.T) {
	db, as := setupAuditTest(t)

	old := AuditLog{Actor: "system", Action: "tablet.create", Resource: "tablet",
		CreatedAt: time.Now().AddDate(0, 0, -100)}
	recent := AuditLog{Actor: "system", Action: "tablet.create", Resource: "tablet",
		CreatedAt: time.Now()}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)

	require.NoError(t, as.CleanupOldLogs(90))

	var remaining int64
	require.NoError(t, db.Model(&AuditLog{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
