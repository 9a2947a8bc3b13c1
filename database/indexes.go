package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// LedgerIndex describes a custom index the automigration cannot express.
type LedgerIndex struct {
	Name  string
	Table string
	SQL   string
}

// LedgerIndexes holds the partial unique indexes that make the "at most one
// open row per tablet" invariant a database guarantee instead of an
// application-level check. Both PostgreSQL and SQLite accept this syntax.
var LedgerIndexes = []LedgerIndex{
	{
		Name:  "idx_assignments_open_tablet",
		Table: "assignments",
		SQL: "CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_open_tablet " +
			"ON assignments (tablet_id) WHERE end_date IS NULL",
	},
	{
		Name:  "idx_maintenances_open_tablet",
		Table: "maintenances",
		SQL: "CREATE UNIQUE INDEX IF NOT EXISTS idx_maintenances_open_tablet " +
			"ON maintenances (tablet_id) WHERE exit_date IS NULL",
	},
	{
		Name:  "idx_assignments_tablet_end",
		Table: "assignments",
		SQL: "CREATE INDEX IF NOT EXISTS idx_assignments_tablet_end " +
			"ON assignments (tablet_id, end_date)",
	},
	{
		Name:  "idx_maintenances_tablet_exit",
		Table: "maintenances",
		SQL: "CREATE INDEX IF NOT EXISTS idx_maintenances_tablet_exit " +
			"ON maintenances (tablet_id, exit_date)",
	},
}

// ApplyLedgerIndexes creates the custom indexes after automigration.
func ApplyLedgerIndexes(db *gorm.DB) error {
	for _, idx := range LedgerIndexes {
		if err := db.Exec(idx.SQL).Error; err != nil {
			return fmt.Errorf("could not create index %s on %s: %w", idx.Name, idx.Table, err)
		}
	}

	log.Printf("Applied %d ledger indexes", len(LedgerIndexes))
	return nil
}
