package testutils

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backend_tablets/database"
	"backend_tablets/models"
)

// SetupTestDB creates an in-memory test database with the full schema,
// ledger indexes included, so the open-row constraints hold in tests too.
func SetupTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, err
	}

	if err := database.ApplyLedgerIndexes(db); err != nil {
		return nil, err
	}

	return db, nil
}

// CleanupTestDB empties every table between test cases.
func CleanupTestDB(db *gorm.DB) {
	tables := []string{"assignments", "maintenances", "tablets", "professionals"}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			log.Printf("Failed to clean table %s: %v", table, err)
		}
	}
}

// CreateTestTablet inserts a tablet fixture.
func CreateTestTablet(db *gorm.DB, tombamento, serial string, isReserve bool) *models.Tablet {
	tablet := &models.Tablet{
		Tombamento:   tombamento,
		SerialNumber: serial,
		Model:        "Test Model",
		IsReserve:    isReserve,
	}
	tablet.Status = tablet.FallbackStatus()
	db.Create(tablet)
	return tablet
}

// CreateTestProfessional inserts a professional fixture.
func CreateTestProfessional(db *gorm.DB, name, cpf string) *models.Professional {
	professional := &models.Professional{
		Name:         name,
		CPF:          cpf,
		Municipality: "Test City",
	}
	db.Create(professional)
	return professional
}
