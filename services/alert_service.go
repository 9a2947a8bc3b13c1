package services

import (
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"backend_tablets/models"
)

// AlertService runs the scheduled overdue-maintenance sweep: tablets sitting
// in repair longer than the configured ceiling are reported to the fleet chat.
type AlertService struct {
	db       *gorm.DB
	telegram *TelegramClient
	cron     *cron.Cron

	maxDays  int
	cronSpec string
}

// NewAlertService creates a new AlertService. telegram may be nil, in which
// case overdue devices are only logged.
func NewAlertService(db *gorm.DB, telegram *TelegramClient, maxDays int, cronSpec string) *AlertService {
	c := cron.New(cron.WithSeconds())
	return &AlertService{
		db:       db,
		telegram: telegram,
		cron:     c,
		maxDays:  maxDays,
		cronSpec: cronSpec,
	}
}

// Start registers the sweep job and starts the scheduler.
func (as *AlertService) Start() error {
	if _, err := as.cron.AddFunc(as.cronSpec, func() {
		if err := as.RunSweep(); err != nil {
			log.Printf("Overdue maintenance sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("could not register sweep job: %w", err)
	}

	as.cron.Start()
	log.Printf("Maintenance alert scheduler started (spec %q, ceiling %d days)", as.cronSpec, as.maxDays)
	return nil
}

// Stop stops the scheduler.
func (as *AlertService) Stop() {
	as.cron.Stop()
	log.Println("Maintenance alert scheduler stopped")
}

// OverdueMaintenance is one device over the repair ceiling.
type OverdueMaintenance struct {
	TabletID   uint   `json:"tablet_id"`
	Tombamento string `json:"tombamento"`
	Model      string `json:"model"`
	EntryDate  string `json:"entry_date"`
	Ticket     string `json:"ticket"`
	Days       int    `json:"days"`
}

// FindOverdue lists open repair periods older than the ceiling.
func (as *AlertService) FindOverdue() ([]OverdueMaintenance, error) {
	var open []models.Maintenance
	if err := as.db.Where("exit_date IS NULL").Order("entry_date ASC").Find(&open).Error; err != nil {
		return nil, fmt.Errorf("could not load open maintenances: %w", err)
	}

	var overdue []OverdueMaintenance
	for _, m := range open {
		days := models.DiffDays(m.EntryDate, "")
		if days <= as.maxDays {
			continue
		}

		var tablet models.Tablet
		if err := as.db.First(&tablet, m.TabletID).Error; err != nil {
			log.Printf("Overdue sweep: could not load tablet %d: %v", m.TabletID, err)
			continue
		}

		overdue = append(overdue, OverdueMaintenance{
			TabletID:   tablet.ID,
			Tombamento: tablet.Tombamento,
			Model:      tablet.Model,
			EntryDate:  m.EntryDate,
			Ticket:     m.Ticket,
			Days:       days,
		})
	}

	return overdue, nil
}

// RunSweep finds overdue devices and reports them.
func (as *AlertService) RunSweep() error {
	overdue, err := as.FindOverdue()
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		log.Println("Overdue maintenance sweep: nothing over the ceiling")
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ <b>Tablets em manutenção há mais de %d dias:</b>\n\n", as.maxDays))
	for _, item := range overdue {
		line := fmt.Sprintf("• %s (%s): %d dias, desde %s", item.Tombamento, item.Model, item.Days, item.EntryDate)
		if item.Ticket != "" {
			line += fmt.Sprintf(" [chamado %s]", item.Ticket)
		}
		sb.WriteString(line + "\n")
		log.Printf("Overdue maintenance: tablet %s in repair for %d days (since %s)",
			item.Tombamento, item.Days, item.EntryDate)
	}

	if err := as.telegram.SendMessage(sb.String()); err != nil {
		log.Printf("Failed to send overdue maintenance alert: %v", err)
	}

	return nil
}
