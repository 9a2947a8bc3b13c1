package services

import (
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"backend_tablets/models"
)

// ImportService reconciles externally sourced spreadsheet rows into the fleet.
// Rows are processed sequentially, each inside its own transaction; a failed
// row is counted and the batch continues. Re-running an identical batch must
// not duplicate tablets, professionals or open ledger rows.
type ImportService struct {
	DB    *gorm.DB
	Fleet *FleetService
	Audit *AuditService
}

// NewImportService creates a new ImportService.
func NewImportService(db *gorm.DB, fleet *FleetService, audit *AuditService) *ImportService {
	return &ImportService{DB: db, Fleet: fleet, Audit: audit}
}

// ImportRow is one spreadsheet row. Field names follow the source sheets.
type ImportRow struct {
	Tombamento      string `json:"tombamento"`
	Serial          string `json:"serial"`
	Modelo          string `json:"modelo"`
	Nome            string `json:"nome"`
	CPF             string `json:"cpf"`
	Municipio       string `json:"municipio"`
	Unidade         string `json:"unidade"`
	DataRecebimento string `json:"data_recebimento"`
}

// ImportStats is the batch outcome. No row-level detail beyond the counters.
type ImportStats struct {
	TabletsNew int `json:"tablets_new"`
	ProfsNew   int `json:"profs_new"`
	Links      int `json:"links"`
	Errors     int `json:"errors"`
}

// rowOutcome is what a single reconciled row contributed.
type rowOutcome struct {
	tabletNew bool
	profNew   bool
	links     int
}

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
var nonDigitRe = regexp.MustCompile(`\D`)
var quoteRe = regexp.MustCompile(`["']`)

// CleanCPF strips everything but digits from a tax id.
func CleanCPF(cpf string) string {
	return nonDigitRe.ReplaceAllString(cpf, "")
}

// ParseImportDate normalizes dd/mm/yyyy or yyyy-mm-dd into an ISO date,
// falling back to today for anything else.
func ParseImportDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.TodayISO()
	}
	if isoDateRe.MatchString(raw) {
		return raw
	}
	if strings.Contains(raw, "/") {
		parts := strings.Split(raw, "/")
		if len(parts) == 3 {
			day, month, year := parts[0], parts[1], parts[2]
			if len(day) == 1 {
				day = "0" + day
			}
			if len(month) == 1 {
				month = "0" + month
			}
			if len(year) == 4 {
				return fmt.Sprintf("%s-%s-%s", year, month, day)
			}
		}
	}
	return models.TodayISO()
}

// Run reconciles a batch of rows against the fleet. The mode selects the
// target state for the whole batch: StatusReserve, StatusInUse or
// StatusMaintenance. Returns the stats and the batch correlation id.
func (is *ImportService) Run(rows []ImportRow, mode string) (*ImportStats, string, error) {
	switch mode {
	case models.StatusReserve, models.StatusInUse, models.StatusMaintenance:
	default:
		return nil, "", fmt.Errorf("unknown import mode %q: %w", mode, ErrValidation)
	}

	batchID := uuid.NewString()
	stats := &ImportStats{}

	for i, row := range rows {
		outcome, err := is.applyRow(row, mode)
		if err != nil {
			log.Printf("Import batch %s: row %d failed: %v", batchID, i+1, err)
			stats.Errors++
			continue
		}
		if outcome.tabletNew {
			stats.TabletsNew++
		}
		if outcome.profNew {
			stats.ProfsNew++
		}
		stats.Links += outcome.links
	}

	if is.Audit != nil {
		if err := is.Audit.LogSuccess(AuditContext{
			Actor:    "system",
			Action:   ActionImportRun,
			Resource: "import",
			Details: map[string]interface{}{
				"batch_id":    batchID,
				"mode":        mode,
				"rows":        len(rows),
				"tablets_new": stats.TabletsNew,
				"profs_new":   stats.ProfsNew,
				"links":       stats.Links,
				"errors":      stats.Errors,
			},
		}); err != nil {
			log.Printf("Failed to write audit log for import batch %s: %v", batchID, err)
		}
	}

	return stats, batchID, nil
}

// applyRow upserts one row. It drives the same primitives the interactive API
// uses, so the ledger invariants hold for bulk import as well.
func (is *ImportService) applyRow(row ImportRow, mode string) (rowOutcome, error) {
	var outcome rowOutcome

	tomb := strings.TrimSpace(row.Tombamento)
	serial := strings.TrimSpace(row.Serial)
	if tomb == "" {
		tomb = serial
	}
	if tomb == "" {
		return outcome, fmt.Errorf("row has neither tombamento nor serial: %w", ErrValidation)
	}

	model := strings.TrimSpace(row.Modelo)
	if model == "" {
		model = "Genérico"
	}
	nome := strings.TrimSpace(quoteRe.ReplaceAllString(row.Nome, ""))
	cpf := CleanCPF(row.CPF)
	city := strings.TrimSpace(row.Municipio)
	if row.Unidade != "" {
		city = strings.TrimSpace(city + " - " + row.Unidade)
	}
	date := ParseImportDate(row.DataRecebimento)

	isReserve := mode == models.StatusReserve

	tx := is.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	tablet, tabletNew, err := is.resolveTablet(tx, tomb, serial, model, date, isReserve)
	if err != nil {
		tx.Rollback()
		return outcome, err
	}
	outcome.tabletNew = tabletNew

	professional, profNew, err := is.resolveProfessional(tx, nome, cpf, city)
	if err != nil {
		tx.Rollback()
		return outcome, err
	}
	outcome.profNew = profNew

	// Custody: InUse rows always, Reserve rows only when a person is named
	if professional != nil && (mode == models.StatusInUse || mode == models.StatusReserve) {
		opened, err := is.ensureOpenAssignment(tx, tablet.ID, professional.ID, date)
		if err != nil {
			tx.Rollback()
			return outcome, err
		}
		if opened {
			outcome.links++
		}
	}

	if mode == models.StatusMaintenance {
		if professional != nil {
			// A pre-closed assignment keeps the previous owner knowable later
			if err := is.ensureHistoricalAssignment(tx, tablet.ID, professional.ID, date); err != nil {
				tx.Rollback()
				return outcome, err
			}
		}
		opened, err := is.ensureOpenMaintenance(tx, tablet.ID, date, nome)
		if err != nil {
			tx.Rollback()
			return outcome, err
		}
		if opened {
			outcome.links++
		}
	}

	// The derivation rule wins over the raw batch status: the target state is
	// realized through ledger rows, never by writing the column directly
	if err := is.Fleet.refreshStatus(tx, tablet); err != nil {
		tx.Rollback()
		return outcome, fmt.Errorf("could not refresh status: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return rowOutcome{}, fmt.Errorf("could not commit row: %w", err)
	}

	return outcome, nil
}

// resolveTablet finds a tablet by tombamento, then by serial, and inserts one
// when neither matches. For an existing tablet only the reserve flag is
// touched; everything else is the interactive API's business.
func (is *ImportService) resolveTablet(tx *gorm.DB, tomb, serial, model, date string, isReserve bool) (*models.Tablet, bool, error) {
	var tablet models.Tablet
	err := tx.Where("tombamento = ?", tomb).First(&tablet).Error
	if err == gorm.ErrRecordNotFound && serial != "" {
		err = tx.Where("serial_number = ?", serial).First(&tablet).Error
	}
	if err == nil {
		if isReserve && !tablet.IsReserve {
			tablet.IsReserve = true
			if err := tx.Model(&tablet).Update("is_reserve", true).Error; err != nil {
				return nil, false, fmt.Errorf("could not flag reserve tablet: %w", err)
			}
		}
		return &tablet, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, fmt.Errorf("could not resolve tablet: %w", err)
	}

	if serial == "" {
		serial = "S/N"
	}
	tablet = models.Tablet{
		Tombamento:   tomb,
		SerialNumber: serial,
		Model:        model,
		IsReserve:    isReserve,
	}
	tablet.Status = tablet.FallbackStatus()
	if created, perr := time.Parse(models.DateLayout, date); perr == nil {
		tablet.CreatedAt = created
	}
	if err := tx.Create(&tablet).Error; err != nil {
		return nil, false, fmt.Errorf("could not create tablet: %w", err)
	}
	return &tablet, true, nil
}

// resolveProfessional finds a professional by cleaned tax id, then by exact
// name, and inserts one when the row carries enough identity. More than one
// candidate is an ambiguity and rejects the row instead of silently picking
// the first match.
func (is *ImportService) resolveProfessional(tx *gorm.DB, nome, cpf, city string) (*models.Professional, bool, error) {
	hasCPF := len(cpf) >= 5
	hasName := len(nome) > 2
	if !hasCPF && !hasName {
		return nil, false, nil
	}

	if hasCPF {
		var candidates []models.Professional
		if err := tx.Where(
			"replace(replace(replace(cpf, '.', ''), '-', ''), ' ', '') = ?", cpf,
		).Find(&candidates).Error; err != nil {
			return nil, false, fmt.Errorf("could not resolve professional by cpf: %w", err)
		}
		if len(candidates) > 1 {
			return nil, false, fmt.Errorf("cpf %s matches %d professionals: %w", cpf, len(candidates), ErrConflict)
		}
		if len(candidates) == 1 {
			return &candidates[0], false, nil
		}
	}

	if hasName {
		var candidates []models.Professional
		if err := tx.Where("name = ?", nome).Find(&candidates).Error; err != nil {
			return nil, false, fmt.Errorf("could not resolve professional by name: %w", err)
		}
		if len(candidates) > 1 {
			return nil, false, fmt.Errorf("name %q matches %d professionals: %w", nome, len(candidates), ErrConflict)
		}
		if len(candidates) == 1 {
			return &candidates[0], false, nil
		}
	}

	professional := models.Professional{
		Name:         nome,
		CPF:          cpf,
		Municipality: city,
	}
	if err := tx.Create(&professional).Error; err != nil {
		return nil, false, fmt.Errorf("could not create professional: %w", err)
	}
	return &professional, true, nil
}

// ensureOpenAssignment opens custody unless the tablet already has an open
// period, which makes re-imports idempotent.
func (is *ImportService) ensureOpenAssignment(tx *gorm.DB, tabletID, professionalID uint, date string) (bool, error) {
	var open int64
	if err := tx.Model(&models.Assignment{}).
		Where("tablet_id = ? AND end_date IS NULL", tabletID).
		Count(&open).Error; err != nil {
		return false, fmt.Errorf("could not check assignment ledger: %w", err)
	}
	if open > 0 {
		return false, nil
	}

	assignment := models.Assignment{
		TabletID:       tabletID,
		ProfessionalID: &professionalID,
		StartDate:      date,
		AttendantName:  "Importação",
	}
	if err := tx.Create(&assignment).Error; err != nil {
		return false, fmt.Errorf("could not open assignment: %w", err)
	}
	return true, nil
}

// ensureHistoricalAssignment inserts a pre-closed custody period linking the
// tablet to the professional when no row links them yet.
func (is *ImportService) ensureHistoricalAssignment(tx *gorm.DB, tabletID, professionalID uint, date string) error {
	var existing int64
	if err := tx.Model(&models.Assignment{}).
		Where("tablet_id = ? AND professional_id = ?", tabletID, professionalID).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("could not check assignment history: %w", err)
	}
	if existing > 0 {
		return nil
	}

	assignment := models.Assignment{
		TabletID:       tabletID,
		ProfessionalID: &professionalID,
		StartDate:      date,
		EndDate:        &date,
		AttendantName:  "Importação",
	}
	if err := tx.Create(&assignment).Error; err != nil {
		return fmt.Errorf("could not insert historical assignment: %w", err)
	}
	return nil
}

// ensureOpenMaintenance opens a repair period unless one is already open.
func (is *ImportService) ensureOpenMaintenance(tx *gorm.DB, tabletID uint, date, owner string) (bool, error) {
	var open int64
	if err := tx.Model(&models.Maintenance{}).
		Where("tablet_id = ? AND exit_date IS NULL", tabletID).
		Count(&open).Error; err != nil {
		return false, fmt.Errorf("could not check maintenance ledger: %w", err)
	}
	if open > 0 {
		return false, nil
	}

	notes := ""
	if owner != "" {
		notes = "Dono: " + owner
	}
	maintenance := models.Maintenance{
		TabletID:  tabletID,
		EntryDate: date,
		Reason:    "Importado",
		Notes:     notes,
	}
	if err := tx.Create(&maintenance).Error; err != nil {
		return false, fmt.Errorf("could not open maintenance: %w", err)
	}
	return true, nil
}

// Column header aliases accepted in uploaded workbooks, lowercase.
var workbookColumns = map[string]string{
	"tombamento":       "tombamento",
	"patrimonio":       "tombamento",
	"patrimônio":       "tombamento",
	"serial":           "serial",
	"serial_number":    "serial",
	"numero de serie":  "serial",
	"número de série":  "serial",
	"modelo":           "modelo",
	"model":            "modelo",
	"nome":             "nome",
	"profissional":     "nome",
	"cpf":              "cpf",
	"municipio":        "municipio",
	"município":        "municipio",
	"cidade":           "municipio",
	"unidade":          "unidade",
	"data_recebimento": "data_recebimento",
	"data recebimento": "data_recebimento",
	"recebimento":      "data_recebimento",
	"data":             "data_recebimento",
}

// ParseWorkbook reads the first sheet of an .xlsx upload into import rows.
// The first row must be a header; unknown columns are ignored.
func ParseWorkbook(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not open workbook: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close workbook: %v", err)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %w", ErrValidation)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q has no data rows: %w", sheets[0], ErrValidation)
	}

	// Map column index -> canonical field from the header row
	fieldByCol := make(map[int]string)
	for i, header := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		if field, ok := workbookColumns[key]; ok {
			fieldByCol[i] = field
		}
	}
	if len(fieldByCol) == 0 {
		return nil, fmt.Errorf("no recognized columns in header row: %w", ErrValidation)
	}

	imports := make([]ImportRow, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		var row ImportRow
		for i, value := range cells {
			switch fieldByCol[i] {
			case "tombamento":
				row.Tombamento = value
			case "serial":
				row.Serial = value
			case "modelo":
				row.Modelo = value
			case "nome":
				row.Nome = value
			case "cpf":
				row.CPF = value
			case "municipio":
				row.Municipio = value
			case "unidade":
				row.Unidade = value
			case "data_recebimento":
				row.DataRecebimento = value
			}
		}
		imports = append(imports, row)
	}

	return imports, nil
}
