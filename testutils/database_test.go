package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_tablets/models"
)

func TestSetupTestDB(t *testing.T) {
	db, err := SetupTestDB()
	require.NoError(t, err)

	for _, table := range []string{"tablets", "professionals", "assignments", "maintenances"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

// The partial unique index must reject a second open custody row even when the
// application-level checks are bypassed.
func TestOpenLedgerConstraint(t *testing.T) {
	db, err := SetupTestDB()
	require.NoError(t, err)

	tablet := CreateTestTablet(db, "T-001", "SN-1", false)
	professional := CreateTestProfessional(db, "Maria Silva", "11122233344")

	first := models.Assignment{
		TabletID:       tablet.ID,
		ProfessionalID: &professional.ID,
		StartDate:      "2024-01-10",
	}
	require.NoError(t, db.Create(&first).Error)

	second := models.Assignment{
		TabletID:       tablet.ID,
		ProfessionalID: &professional.ID,
		StartDate:      "2024-01-11",
	}
	assert.Error(t, db.Create(&second).Error, "second open row must hit the unique index")

	// A closed row for the same tablet is fine
	end := "2024-01-11"
	closed := models.Assignment{
		TabletID:       tablet.ID,
		ProfessionalID: &professional.ID,
		StartDate:      "2024-01-05",
		EndDate:        &end,
	}
	assert.NoError(t, db.Create(&closed).Error)

	CleanupTestDB(db)
	var count int64
	require.NoError(t, db.Model(&models.Assignment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
