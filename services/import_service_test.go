package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_tablets/models"
)

func setupImportTest(t *testing.T) (*gorm.DB, *ImportService) {
	db, fs := setupFleetTest(t)
	return db, NewImportService(db, fs, fs.Audit)
}

func TestCleanCPF(t *testing.T) {
	assert.Equal(t, "12345678901", CleanCPF("123.456.789-01"))
	assert.Equal(t, "12345678901", CleanCPF(" 123 456 789 01 "))
	assert.Equal(t, "", CleanCPF("sem cpf"))
}

func TestParseImportDate(t *testing.T) {
	assert.Equal(t, "2024-03-05", ParseImportDate("05/03/2024"))
	assert.Equal(t, "2024-03-05", ParseImportDate("5/3/2024"))
	assert.Equal(t, "2024-03-05", ParseImportDate("2024-03-05"))

	// Anything unparseable degrades to today
	assert.Equal(t, models.TodayISO(), ParseImportDate(""))
	assert.Equal(t, models.TodayISO(), ParseImportDate("março de 2024"))
}

func TestImportRejectsUnknownMode(t *testing.T) {
	_, is := setupImportTest(t)

	_, _, err := is.Run([]ImportRow{{Tombamento: "T-001"}}, "Broken")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImportCreatesTabletAndProfessional(t *testing.T) {
	db, is := setupImportTest(t)

	rows := []ImportRow{{
		Tombamento:      "T-001",
		Serial:          "SN-1",
		Modelo:          "X",
		Nome:            "Maria Silva",
		CPF:             "123.456.789-01",
		Municipio:       "Recife",
		Unidade:         "UBS Centro",
		DataRecebimento: "10/01/2024",
	}}

	stats, batchID, err := is.Run(rows, models.StatusInUse)
	require.NoError(t, err)
	assert.NotEmpty(t, batchID)
	assert.Equal(t, 1, stats.TabletsNew)
	assert.Equal(t, 1, stats.ProfsNew)
	assert.Equal(t, 1, stats.Links)
	assert.Equal(t, 0, stats.Errors)

	var tablet models.Tablet
	require.NoError(t, db.Where("tombamento = ?", "T-001").First(&tablet).Error)
	assert.Equal(t, models.StatusInUse, tablet.Status)

	var professional models.Professional
	require.NoError(t, db.Where("name = ?", "Maria Silva").First(&professional).Error)
	assert.Equal(t, "12345678901", professional.CPF)
	assert.Equal(t, "Recife - UBS Centro", professional.Municipality)

	var assignment models.Assignment
	require.NoError(t, db.Where("tablet_id = ? AND end_date IS NULL", tablet.ID).
		First(&assignment).Error)
	assert.Equal(t, "2024-01-10", assignment.StartDate)
}

func TestImportIsIdempotent(t *testing.T) {
	db, is := setupImportTest(t)

	rows := []ImportRow{
		{Tombamento: "T-001", Serial: "SN-1", Nome: "Maria Silva", CPF: "11122233344"},
		{Tombamento: "T-002", Serial: "SN-2", Nome: "João Souza", CPF: "55566677788"},
	}

	first, _, err := is.Run(rows, models.StatusInUse)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TabletsNew)
	assert.Equal(t, 2, first.ProfsNew)
	assert.Equal(t, 2, first.Links)

	second, _, err := is.Run(rows, models.StatusInUse)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TabletsNew)
	assert.Equal(t, 0, second.ProfsNew)
	assert.Equal(t, 0, second.Links)
	assert.Equal(t, 0, second.Errors)

	var tablets, professionals, assignments int64
	require.NoError(t, db.Model(&models.Tablet{}).Count(&tablets).Error)
	require.NoError(t, db.Model(&models.Professional{}).Count(&professionals).Error)
	require.NoError(t, db.Model(&models.Assignment{}).Count(&assignments).Error)
	assert.Equal(t, int64(2), tablets)
	assert.Equal(t, int64(2), professionals)
	assert.Equal(t, int64(2), assignments)
}

func TestImportDeduplicatesSameTagWithinBatch(t *testing.T) {
	db, is := setupImportTest(t)

	rows := []ImportRow{
		{Tombamento: "T-099", Nome: "Maria Silva", CPF: "11122233344"},
		{Tombamento: "T-099", Nome: "Maria Silva", CPF: "11122233344"},
	}

	stats, _, err := is.Run(rows, models.StatusInUse)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TabletsNew)
	assert.Equal(t, 1, stats.Links, "the second row must not open a second custody")
	assert.Equal(t, 0, stats.Errors)

	var tablets int64
	require.NoError(t, db.Model(&models.Tablet{}).
		Where("tombamento = ?", "T-099").Count(&tablets).Error)
	assert.Equal(t, int64(1), tablets)
}

func TestImportFallsBackToSerial(t *testing.T) {
	db, is := setupImportTest(t)

	stats, _, err := is.Run([]ImportRow{{Serial: "SN-77"}}, models.StatusReserve)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TabletsNew)

	var tablet models.Tablet
	require.NoError(t, db.Where("tombamento = ?", "SN-77").First(&tablet).Error)
	assert.True(t, tablet.IsReserve)
	assert.Equal(t, models.StatusReserve, tablet.Status)
	assert.Equal(t, "Genérico", tablet.Model)
}

func TestImportCountsRowsWithoutIdentity(t *testing.T) {
	_, is := setupImportTest(t)

	stats, _, err := is.Run([]ImportRow{
		{Nome: "Maria Silva"},
		{Tombamento: "T-001"},
	}, models.StatusReserve)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.TabletsNew)
}

func TestImportRejectsAmbiguousCPF(t *testing.T) {
	db, is := setupImportTest(t)

	// Legacy data: two professionals sharing a tax id
	require.NoError(t, db.Create(&models.Professional{Name: "Maria A", CPF: "11122233344"}).Error)
	require.NoError(t, db.Create(&models.Professional{Name: "Maria B", CPF: "11122233344"}).Error)

	stats, _, err := is.Run([]ImportRow{
		{Tombamento: "T-001", Nome: "Maria", CPF: "111.222.333-44"},
	}, models.StatusInUse)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors, "an ambiguous match rejects the row")
	assert.Equal(t, 0, stats.Links)
}

func TestImportMaintenanceMode(t *testing.T) {
	db, is := setupImportTest(t)

	rows := []ImportRow{{
		Tombamento:      "T-001",
		Nome:            "Maria Silva",
		CPF:             "11122233344",
		DataRecebimento: "2024-01-10",
	}}

	stats, _, err := is.Run(rows, models.StatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TabletsNew)
	assert.Equal(t, 1, stats.Links)

	var tablet models.Tablet
	require.NoError(t, db.Where("tombamento = ?", "T-001").First(&tablet).Error)
	assert.Equal(t, models.StatusMaintenance, tablet.Status)

	var maintenance models.Maintenance
	require.NoError(t, db.Where("tablet_id = ? AND exit_date IS NULL", tablet.ID).
		First(&maintenance).Error)
	assert.Equal(t, "Importado", maintenance.Reason)
	assert.Equal(t, "Dono: Maria Silva", maintenance.Notes)

	// The owner is linked through a pre-closed custody, not an open one
	var assignment models.Assignment
	require.NoError(t, db.Where("tablet_id = ?", tablet.ID).First(&assignment).Error)
	require.NotNil(t, assignment.EndDate)
	assert.Equal(t, assignment.StartDate, *assignment.EndDate)

	// Re-running leaves the ledgers unchanged
	again, _, err := is.Run(rows, models.StatusMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 0, again.TabletsNew)
	assert.Equal(t, 0, again.Links)
}

func TestImportExistingTabletKeepsDerivedStatus(t *testing.T) {
	db, is := setupImportTest(t)
	fs := is.Fleet

	tablet := createTablet(t, fs, "T-001", "SN-1", false)
	p1 := createProfessional(t, db, "P1", "99988877766")
	_, err := fs.OpenAssignment(OpenAssignmentInput{TabletID: tablet.ID, ProfessionalID: &p1.ID})
	require.NoError(t, err)

	// A reserve batch touching an in-use tablet flags it but cannot make it idle
	stats, _, err := is.Run([]ImportRow{{Tombamento: "T-001"}}, models.StatusReserve)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TabletsNew)

	var reloaded models.Tablet
	require.NoError(t, db.First(&reloaded, tablet.ID).Error)
	assert.True(t, reloaded.IsReserve)
	assert.Equal(t, models.StatusInUse, reloaded.Status, "the open custody still drives the status")
}
