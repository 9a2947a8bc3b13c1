package services

import (
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"backend_tablets/models"
)

// FleetService holds the tablet lifecycle state machine. Every mutation runs
// inside one transaction and ends by recomputing the cached tablet status from
// the two ledgers, so the status column can never drift from them.
type FleetService struct {
	DB    *gorm.DB
	Audit *AuditService
}

// NewFleetService creates a new FleetService. The audit service may be nil.
func NewFleetService(db *gorm.DB, audit *AuditService) *FleetService {
	return &FleetService{DB: db, Audit: audit}
}

// CreateTabletInput carries the fields accepted when registering a tablet.
type CreateTabletInput struct {
	Tombamento   string `json:"tombamento"`
	SerialNumber string `json:"serial_number"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	IsReserve    bool   `json:"is_reserve"`
	ReservePIN   string `json:"reserve_pin"`
	Municipio    string `json:"municipio"`
	CreatedAt    string `json:"created_at"` // optional ISO date for historical registrations
}

// UpdateTabletInput carries the mutable tablet fields. Status is absent on
// purpose: it is derived, never written by callers.
type UpdateTabletInput struct {
	Tombamento   *string `json:"tombamento"`
	SerialNumber *string `json:"serial_number"`
	Model        *string `json:"model"`
	IsReserve    *bool   `json:"is_reserve"`
	ReservePIN   *string `json:"reserve_pin"`
	Municipio    *string `json:"municipio"`
}

// OpenAssignmentInput carries the fields of a custody open request.
type OpenAssignmentInput struct {
	TabletID       uint   `json:"tablet_id"`
	ProfessionalID *uint  `json:"professional_id"`
	StartDate      string `json:"start_date"`
	AttendantName  string `json:"attendant_name"`
	CityMode       bool   `json:"city_mode"`
	CityName       string `json:"city_name"`
}

// EnterMaintenanceInput carries the fields of a maintenance entry request.
type EnterMaintenanceInput struct {
	TabletID  uint   `json:"tablet_id"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
	EntryDate string `json:"entry_date"`
}

// ProfessionalRef is the denormalized occupant snapshot returned with receipts.
type ProfessionalRef struct {
	Name string `json:"name"`
	CPF  string `json:"cpf"`
}

// MaintenanceReceipt is the context a caller needs to render an entry receipt.
type MaintenanceReceipt struct {
	MaintenanceID    uint             `json:"maintenance_id"`
	Tablet           models.Tablet    `json:"tablet"`
	LastProfessional *ProfessionalRef `json:"last_professional"`
}

// TabletView is one row of the fleet listing: the tablet enriched with the
// resolved occupant, current attendant and days spent in maintenance.
type TabletView struct {
	models.Tablet
	ProfessionalName         *string `json:"professional_name"`
	ProfessionalCPF          *string `json:"professional_cpf"`
	ProfessionalMunicipality *string `json:"professional_municipality"`
	CurrentAttendant         *string `json:"current_attendant"`
	MaintenanceDays          *int    `json:"maintenance_days"`
}

// TimelineEvent is one entry of the reconstructed tablet history.
type TimelineEvent struct {
	Type          string  `json:"type"` // create, assign, maint
	Date          string  `json:"date"`
	EndDate       *string `json:"end_date,omitempty"`
	Info          string  `json:"info"`
	AttendantName string  `json:"attendant_name,omitempty"`
	ReservePIN    string  `json:"reserve_pin,omitempty"`
	Ticket        string  `json:"ticket,omitempty"`
}

// deriveStatus computes the status the ledgers imply for a tablet:
// open maintenance wins, then open assignment, then the reserve/available fallback.
func (fs *FleetService) deriveStatus(tx *gorm.DB, tablet *models.Tablet) (string, error) {
	var openMaint int64
	if err := tx.Model(&models.Maintenance{}).
		Where("tablet_id = ? AND exit_date IS NULL", tablet.ID).
		Count(&openMaint).Error; err != nil {
		return "", err
	}
	if openMaint > 0 {
		return models.StatusMaintenance, nil
	}

	var openAssign int64
	if err := tx.Model(&models.Assignment{}).
		Where("tablet_id = ? AND end_date IS NULL", tablet.ID).
		Count(&openAssign).Error; err != nil {
		return "", err
	}
	if openAssign > 0 {
		return models.StatusInUse, nil
	}

	return tablet.FallbackStatus(), nil
}

// refreshStatus re-derives and persists the cached status inside the caller's
// transaction.
func (fs *FleetService) refreshStatus(tx *gorm.DB, tablet *models.Tablet) error {
	status, err := fs.deriveStatus(tx, tablet)
	if err != nil {
		return err
	}
	tablet.Status = status
	return tx.Model(tablet).Update("status", status).Error
}

// CreateTablet registers a new tablet. Conflict when the asset tag or serial
// number is already registered.
func (fs *FleetService) CreateTablet(input CreateTabletInput) (*models.Tablet, error) {
	if input.Tombamento == "" || input.SerialNumber == "" {
		return nil, fmt.Errorf("tombamento and serial number are required: %w", ErrValidation)
	}

	isReserve := input.IsReserve || input.Status == models.StatusReserve

	tablet := models.Tablet{
		Tombamento:   input.Tombamento,
		SerialNumber: input.SerialNumber,
		Model:        input.Model,
		IsReserve:    isReserve,
		ReservePIN:   input.ReservePIN,
		Municipio:    input.Municipio,
	}
	tablet.Status = tablet.FallbackStatus()

	if input.CreatedAt != "" {
		if created, err := time.Parse(models.DateLayout, input.CreatedAt); err == nil {
			tablet.CreatedAt = created
		}
	}

	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var existing int64
	if err := tx.Model(&models.Tablet{}).
		Where("tombamento = ? OR serial_number = ?", input.Tombamento, input.SerialNumber).
		Count(&existing).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not check for duplicates: %w", err)
	}
	if existing > 0 {
		tx.Rollback()
		return nil, fmt.Errorf("a tablet with this tombamento or serial already exists: %w", ErrConflict)
	}

	if err := tx.Create(&tablet).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not create tablet: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionTabletCreate, "tablet", &tablet.ID, map[string]interface{}{
		"tombamento": tablet.Tombamento,
		"serial":     tablet.SerialNumber,
		"status":     tablet.Status,
	})
	return &tablet, nil
}

// UpdateTablet changes the mutable tablet fields and re-derives the status,
// which may change when the reserve flag flips on an idle tablet.
func (fs *FleetService) UpdateTablet(id uint, input UpdateTabletInput) (*models.Tablet, error) {
	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var tablet models.Tablet
	if err := tx.First(&tablet, id).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tablet %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("could not load tablet: %w", err)
	}

	if input.Tombamento != nil && *input.Tombamento != tablet.Tombamento {
		var dup int64
		if err := tx.Model(&models.Tablet{}).
			Where("tombamento = ? AND id <> ?", *input.Tombamento, id).
			Count(&dup).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("could not check for duplicates: %w", err)
		}
		if dup > 0 {
			tx.Rollback()
			return nil, fmt.Errorf("tombamento already registered: %w", ErrConflict)
		}
		tablet.Tombamento = *input.Tombamento
	}
	if input.SerialNumber != nil {
		tablet.SerialNumber = *input.SerialNumber
	}
	if input.Model != nil {
		tablet.Model = *input.Model
	}
	if input.IsReserve != nil {
		tablet.IsReserve = *input.IsReserve
	}
	if input.ReservePIN != nil {
		tablet.ReservePIN = *input.ReservePIN
	}
	if input.Municipio != nil {
		tablet.Municipio = *input.Municipio
	}

	if err := tx.Save(&tablet).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not update tablet: %w", err)
	}

	if err := fs.refreshStatus(tx, &tablet); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not refresh status: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionTabletUpdate, "tablet", &tablet.ID, nil)
	return &tablet, nil
}

// DeleteTablet removes a tablet and both of its ledgers. History is not kept
// past tablet deletion.
func (fs *FleetService) DeleteTablet(id uint) error {
	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var tablet models.Tablet
	if err := tx.First(&tablet, id).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("tablet %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("could not load tablet: %w", err)
	}

	if err := tx.Where("tablet_id = ?", id).Delete(&models.Assignment{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("could not delete assignments: %w", err)
	}
	if err := tx.Where("tablet_id = ?", id).Delete(&models.Maintenance{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("could not delete maintenances: %w", err)
	}
	if err := tx.Delete(&tablet).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("could not delete tablet: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionTabletDelete, "tablet", &id, map[string]interface{}{
		"tombamento": tablet.Tombamento,
	})
	return nil
}

// GetTablet loads a single tablet.
func (fs *FleetService) GetTablet(id uint) (*models.Tablet, error) {
	var tablet models.Tablet
	if err := fs.DB.First(&tablet, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tablet %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &tablet, nil
}

// ListTablets returns every tablet enriched with the occupant resolved from the
// most recent assignment row, open or not. Occupant fields are nulled for an
// available non-reserve tablet; a reserve or in-maintenance tablet keeps its
// last known occupant for operator convenience.
func (fs *FleetService) ListTablets() ([]TabletView, error) {
	var tablets []models.Tablet
	if err := fs.DB.Order("id DESC").Find(&tablets).Error; err != nil {
		return nil, fmt.Errorf("could not list tablets: %w", err)
	}

	// Latest assignment per tablet, regardless of end date
	var lastAssignments []models.Assignment
	if err := fs.DB.
		Joins("JOIN (SELECT tablet_id, MAX(id) AS max_id FROM assignments GROUP BY tablet_id) last ON last.max_id = assignments.id").
		Preload("Professional").
		Find(&lastAssignments).Error; err != nil {
		return nil, fmt.Errorf("could not resolve occupants: %w", err)
	}
	lastByTablet := make(map[uint]models.Assignment, len(lastAssignments))
	for _, a := range lastAssignments {
		lastByTablet[a.TabletID] = a
	}

	var openMaints []models.Maintenance
	if err := fs.DB.Where("exit_date IS NULL").Find(&openMaints).Error; err != nil {
		return nil, fmt.Errorf("could not load open maintenances: %w", err)
	}
	maintByTablet := make(map[uint]models.Maintenance, len(openMaints))
	for _, m := range openMaints {
		maintByTablet[m.TabletID] = m
	}

	views := make([]TabletView, 0, len(tablets))
	for _, t := range tablets {
		view := TabletView{Tablet: t}

		if m, ok := maintByTablet[t.ID]; ok {
			view.ActiveTicket = m.Ticket
			days := models.DiffDays(m.EntryDate, "")
			view.MaintenanceDays = &days
		}

		showOccupant := !(t.Status == models.StatusAvailable && !t.IsReserve)
		if last, ok := lastByTablet[t.ID]; ok && showOccupant {
			if last.Professional != nil {
				view.ProfessionalName = &last.Professional.Name
				view.ProfessionalCPF = &last.Professional.CPF
				view.ProfessionalMunicipality = &last.Professional.Municipality
			} else if last.City != "" {
				city := last.City
				view.ProfessionalName = &city
			}
			if last.AttendantName != "" {
				attendant := last.AttendantName
				view.CurrentAttendant = &attendant
			}
		}

		views = append(views, view)
	}

	return views, nil
}

// OpenAssignment opens a custody period. Conflict when the tablet already has
// an open custody or an open maintenance. In city mode the tablet is parked
// under a municipality pool and forced into the reserve fleet; in person mode a
// reserve tablet keeps its reserve flag and home municipality (a reserve tablet
// lent to a person is still a reserve tablet), while an ordinary tablet gets
// both cleared.
func (fs *FleetService) OpenAssignment(input OpenAssignmentInput) (*models.Assignment, error) {
	if input.CityMode {
		if input.CityName == "" {
			return nil, fmt.Errorf("city name is required in city mode: %w", ErrValidation)
		}
	} else if input.ProfessionalID == nil {
		return nil, fmt.Errorf("professional is required: %w", ErrValidation)
	}

	startDate := input.StartDate
	if startDate == "" {
		startDate = models.TodayISO()
	}
	attendant := input.AttendantName
	if attendant == "" {
		attendant = "Sistema"
	}

	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var tablet models.Tablet
	if err := tx.First(&tablet, input.TabletID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tablet %d: %w", input.TabletID, ErrNotFound)
		}
		return nil, fmt.Errorf("could not load tablet: %w", err)
	}

	var openMaint int64
	if err := tx.Model(&models.Maintenance{}).
		Where("tablet_id = ? AND exit_date IS NULL", tablet.ID).
		Count(&openMaint).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not check maintenance ledger: %w", err)
	}
	if openMaint > 0 {
		tx.Rollback()
		return nil, fmt.Errorf("tablet is in maintenance: %w", ErrConflict)
	}

	var openAssign int64
	if err := tx.Model(&models.Assignment{}).
		Where("tablet_id = ? AND end_date IS NULL", tablet.ID).
		Count(&openAssign).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not check assignment ledger: %w", err)
	}
	if openAssign > 0 {
		tx.Rollback()
		return nil, fmt.Errorf("tablet already linked, close the custody first: %w", ErrConflict)
	}

	assignment := models.Assignment{
		TabletID:      tablet.ID,
		StartDate:     startDate,
		AttendantName: attendant,
	}

	if input.CityMode {
		assignment.City = input.CityName
		tablet.Municipio = input.CityName
		tablet.IsReserve = true
	} else {
		var professional models.Professional
		if err := tx.First(&professional, *input.ProfessionalID).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return nil, fmt.Errorf("professional %d: %w", *input.ProfessionalID, ErrNotFound)
			}
			return nil, fmt.Errorf("could not load professional: %w", err)
		}
		assignment.ProfessionalID = input.ProfessionalID

		if !tablet.IsReserve {
			// Ordinary tablet: the loan pins it to a person, not a pool
			tablet.Municipio = ""
		}
	}

	// The partial unique index on open assignments backs this insert; a lost
	// race surfaces as a constraint error instead of a second open row.
	if err := tx.Create(&assignment).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("tablet already linked: %w", ErrConflict)
	}

	if err := tx.Save(&tablet).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not update tablet: %w", err)
	}

	if err := fs.refreshStatus(tx, &tablet); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not refresh status: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("could not commit: %w", err)
	}

	fs.auditActor(attendant, ActionAssignmentOpen, "assignment", &assignment.ID, map[string]interface{}{
		"tablet_id": tablet.ID,
		"city_mode": input.CityMode,
	})
	return &assignment, nil
}

// CloseAssignment closes the open custody period of a tablet. Closing with no
// open custody is a benign no-op, the false return tells the caller nothing
// changed.
func (fs *FleetService) CloseAssignment(tabletID uint, endDate string) (bool, error) {
	if endDate == "" {
		endDate = models.TodayISO()
	}

	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var tablet models.Tablet
	if err := tx.First(&tablet, tabletID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return false, fmt.Errorf("tablet %d: %w", tabletID, ErrNotFound)
		}
		return false, fmt.Errorf("could not load tablet: %w", err)
	}

	var assignment models.Assignment
	err := tx.Where("tablet_id = ? AND end_date IS NULL", tabletID).First(&assignment).Error
	if err == gorm.ErrRecordNotFound {
		tx.Rollback()
		return false, nil
	}
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not load open assignment: %w", err)
	}

	assignment.EndDate = &endDate
	if err := tx.Save(&assignment).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not close assignment: %w", err)
	}

	if err := fs.refreshStatus(tx, &tablet); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not refresh status: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return false, fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionAssignmentClose, "assignment", &assignment.ID, map[string]interface{}{
		"tablet_id": tabletID,
		"end_date":  endDate,
	})
	return true, nil
}

// EnterMaintenance evicts the current holder into history and opens a repair
// period. The returned receipt carries the denormalized context an external
// renderer needs.
func (fs *FleetService) EnterMaintenance(input EnterMaintenanceInput) (*MaintenanceReceipt, error) {
	entryDate := input.EntryDate
	if entryDate == "" {
		entryDate = models.TodayISO()
	}

	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var tablet models.Tablet
	if err := tx.First(&tablet, input.TabletID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tablet %d: %w", input.TabletID, ErrNotFound)
		}
		return nil, fmt.Errorf("could not load tablet: %w", err)
	}

	var openMaint int64
	if err := tx.Model(&models.Maintenance{}).
		Where("tablet_id = ? AND exit_date IS NULL", tablet.ID).
		Count(&openMaint).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not check maintenance ledger: %w", err)
	}
	if openMaint > 0 {
		tx.Rollback()
		return nil, fmt.Errorf("tablet is already in maintenance: %w", ErrConflict)
	}

	// Capture the prior occupant before evicting them
	var lastProfessional *ProfessionalRef
	var open models.Assignment
	err := tx.Preload("Professional").
		Where("tablet_id = ? AND end_date IS NULL", tablet.ID).
		First(&open).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		tx.Rollback()
		return nil, fmt.Errorf("could not load open assignment: %w", err)
	}
	if err == nil {
		if open.Professional != nil {
			lastProfessional = &ProfessionalRef{Name: open.Professional.Name, CPF: open.Professional.CPF}
		}
		open.EndDate = &entryDate
		if err := tx.Save(&open).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("could not close assignment: %w", err)
		}
	}

	maintenance := models.Maintenance{
		TabletID:  tablet.ID,
		EntryDate: entryDate,
		Reason:    input.Reason,
		Notes:     input.Notes,
	}
	if err := tx.Create(&maintenance).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not open maintenance: %w", err)
	}

	if err := fs.refreshStatus(tx, &tablet); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("could not refresh status: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionMaintenanceEnter, "maintenance", &maintenance.ID, map[string]interface{}{
		"tablet_id": tablet.ID,
		"reason":    input.Reason,
	})
	return &MaintenanceReceipt{
		MaintenanceID:    maintenance.ID,
		Tablet:           tablet,
		LastProfessional: lastProfessional,
	}, nil
}

// ExitMaintenance closes the open repair period. A non-reserve tablet with a
// most recent assignment gets a new custody period opened to the same
// professional; a reserve tablet falls back to the pool and never auto-assigns.
func (fs *FleetService) ExitMaintenance(tabletID uint, exitDate string) (bool, error) {
	if exitDate == "" {
		exitDate = models.TodayISO()
	}

	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var tablet models.Tablet
	if err := tx.First(&tablet, tabletID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return false, fmt.Errorf("tablet %d: %w", tabletID, ErrNotFound)
		}
		return false, fmt.Errorf("could not load tablet: %w", err)
	}

	var maintenance models.Maintenance
	err := tx.Where("tablet_id = ? AND exit_date IS NULL", tabletID).First(&maintenance).Error
	if err == gorm.ErrRecordNotFound {
		tx.Rollback()
		return false, fmt.Errorf("no open maintenance for tablet %d: %w", tabletID, ErrNotApplicable)
	}
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not load open maintenance: %w", err)
	}

	maintenance.ExitDate = &exitDate
	if err := tx.Save(&maintenance).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not close maintenance: %w", err)
	}

	// The ticket stays on the closed row; only the denormalized pointer clears
	tablet.ActiveTicket = ""

	restored := false
	if !tablet.IsReserve {
		var last models.Assignment
		err := tx.Where("tablet_id = ?", tabletID).Order("id DESC").First(&last).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			tx.Rollback()
			return false, fmt.Errorf("could not load last assignment: %w", err)
		}
		if err == nil && last.ProfessionalID != nil {
			reopened := models.Assignment{
				TabletID:       tabletID,
				ProfessionalID: last.ProfessionalID,
				StartDate:      exitDate,
				AttendantName:  "Sistema",
			}
			if err := tx.Create(&reopened).Error; err != nil {
				tx.Rollback()
				return false, fmt.Errorf("could not restore custody: %w", err)
			}
			restored = true
		}
	}

	if err := tx.Save(&tablet).Error; err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not update tablet: %w", err)
	}

	if err := fs.refreshStatus(tx, &tablet); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("could not refresh status: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return false, fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionMaintenanceExit, "maintenance", &maintenance.ID, map[string]interface{}{
		"tablet_id":      tabletID,
		"restored_owner": restored,
	})
	return restored, nil
}

// AttachTicket writes the support ticket id to the maintenance row and, while
// the row is open, to the tablet's denormalized active_ticket.
func (fs *FleetService) AttachTicket(maintenanceID uint, ticket string) error {
	tx := fs.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var maintenance models.Maintenance
	if err := tx.First(&maintenance, maintenanceID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("maintenance %d: %w", maintenanceID, ErrNotFound)
		}
		return fmt.Errorf("could not load maintenance: %w", err)
	}

	maintenance.Ticket = ticket
	if err := tx.Save(&maintenance).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("could not save ticket: %w", err)
	}

	if maintenance.IsOpen() {
		if err := tx.Model(&models.Tablet{}).
			Where("id = ?", maintenance.TabletID).
			Update("active_ticket", ticket).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("could not update tablet ticket: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("could not commit: %w", err)
	}

	fs.audit(ActionTicketAttach, "maintenance", &maintenanceID, map[string]interface{}{
		"ticket": ticket,
	})
	return nil
}

// Timeline reconstructs the tablet history as a fresh union of the creation
// event and both ledgers, newest first. The two ledgers are append-only, so no
// separate event table is needed.
func (fs *FleetService) Timeline(tabletID uint) ([]TimelineEvent, error) {
	var tablet models.Tablet
	if err := fs.DB.First(&tablet, tabletID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("tablet %d: %w", tabletID, ErrNotFound)
		}
		return nil, fmt.Errorf("could not load tablet: %w", err)
	}

	var assignments []models.Assignment
	if err := fs.DB.Preload("Professional").
		Where("tablet_id = ?", tabletID).
		Order("id ASC").
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("could not load assignments: %w", err)
	}

	var maintenances []models.Maintenance
	if err := fs.DB.Where("tablet_id = ?", tabletID).
		Order("id ASC").
		Find(&maintenances).Error; err != nil {
		return nil, fmt.Errorf("could not load maintenances: %w", err)
	}

	timeline := make([]TimelineEvent, 0, len(assignments)+len(maintenances)+1)

	for _, a := range assignments {
		info := a.City
		if a.Professional != nil {
			info = a.Professional.Name
		}
		timeline = append(timeline, TimelineEvent{
			Type:          "assign",
			Date:          a.StartDate,
			EndDate:       a.EndDate,
			Info:          info,
			AttendantName: a.AttendantName,
			ReservePIN:    tablet.ReservePIN,
		})
	}

	for _, m := range maintenances {
		timeline = append(timeline, TimelineEvent{
			Type:    "maint",
			Date:    m.EntryDate,
			EndDate: m.ExitDate,
			Info:    m.Reason,
			Ticket:  m.Ticket,
		})
	}

	timeline = append(timeline, TimelineEvent{
		Type: "create",
		Date: tablet.CreatedAt.Format(models.DateLayout),
		Info: "Tablet Cadastrado",
	})

	// ISO dates sort lexicographically; stable keeps input order on ties
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Date > timeline[j].Date
	})

	return timeline, nil
}

func (fs *FleetService) audit(action AuditAction, resource string, resourceID *uint, details map[string]interface{}) {
	fs.auditActor("system", action, resource, resourceID, details)
}

func (fs *FleetService) auditActor(actor string, action AuditAction, resource string, resourceID *uint, details map[string]interface{}) {
	if fs.Audit == nil {
		return
	}
	if err := fs.Audit.LogSuccess(AuditContext{
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
	}); err != nil {
		log.Printf("Failed to write audit log for %s: %v", action, err)
	}
}
