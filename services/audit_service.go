package services

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"
)

// AuditLog records who performed which mutation. Best-effort append: a failed
// write is logged and never fails the mutation it describes.
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Actor      string    `json:"actor" gorm:"size:150;index"`
	Action     string    `json:"action" gorm:"not null;index"`
	Resource   string    `json:"resource" gorm:"not null;index"`
	ResourceID *uint     `json:"resource_id" gorm:"index"`
	Details    string    `json:"details" gorm:"type:text"`
	Success    bool      `json:"success" gorm:"default:true;index"`
	ErrorMsg   string    `json:"error_message" gorm:"size:1000"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// AuditAction names the mutations the core performs.
type AuditAction string

const (
	ActionTabletCreate AuditAction = "tablet.create"
	ActionTabletUpdate AuditAction = "tablet.update"
	ActionTabletDelete AuditAction = "tablet.delete"

	ActionAssignmentOpen  AuditAction = "assignment.open"
	ActionAssignmentClose AuditAction = "assignment.close"

	ActionMaintenanceEnter AuditAction = "maintenance.enter"
	ActionMaintenanceExit  AuditAction = "maintenance.exit"
	ActionTicketAttach     AuditAction = "maintenance.ticket"

	ActionImportRun AuditAction = "import.run"
)

// AuditService appends audit log entries.
type AuditService struct {
	db     *gorm.DB
	logger *log.Logger
}

// NewAuditService creates a new audit service.
func NewAuditService(db *gorm.DB, logger *log.Logger) *AuditService {
	return &AuditService{db: db, logger: logger}
}

// AuditContext is one entry to record.
type AuditContext struct {
	Actor      string
	Action     AuditAction
	Resource   string
	ResourceID *uint
	Details    map[string]interface{}
	Success    bool
	ErrorMsg   string
}

// Log appends an audit entry.
func (as *AuditService) Log(ctx AuditContext) error {
	entry := &AuditLog{
		Actor:      ctx.Actor,
		Action:     string(ctx.Action),
		Resource:   ctx.Resource,
		ResourceID: ctx.ResourceID,
		Success:    ctx.Success,
		ErrorMsg:   ctx.ErrorMsg,
		CreatedAt:  time.Now(),
	}

	if ctx.Details != nil {
		if detailsJSON, err := json.Marshal(ctx.Details); err == nil {
			entry.Details = string(detailsJSON)
		}
	}

	if err := as.db.Create(entry).Error; err != nil {
		if as.logger != nil {
			as.logger.Printf("Failed to create audit log: %v", err)
		}
		return err
	}

	return nil
}

// LogSuccess appends a successful action.
func (as *AuditService) LogSuccess(ctx AuditContext) error {
	ctx.Success = true
	return as.Log(ctx)
}

// LogFailure appends a failed action.
func (as *AuditService) LogFailure(ctx AuditContext, err error) error {
	ctx.Success = false
	ctx.ErrorMsg = err.Error()
	return as.Log(ctx)
}

// AuditFilters narrows an audit log listing.
type AuditFilters struct {
	Actor      string
	Action     string
	Resource   string
	ResourceID *uint
	Success    *bool
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
	Offset     int
}

// GetAuditLogs lists audit entries, newest first.
func (as *AuditService) GetAuditLogs(filters AuditFilters) ([]AuditLog, error) {
	query := as.db.Model(&AuditLog{})

	if filters.Actor != "" {
		query = query.Where("actor = ?", filters.Actor)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.ResourceID != nil {
		query = query.Where("resource_id = ?", *filters.ResourceID)
	}
	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}
	if !filters.StartDate.IsZero() {
		query = query.Where("created_at >= ?", filters.StartDate)
	}
	if !filters.EndDate.IsZero() {
		query = query.Where("created_at <= ?", filters.EndDate)
	}

	query = query.Order("created_at DESC")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var logs []AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}

	return logs, nil
}

// CleanupOldLogs drops entries older than the retention window.
func (as *AuditService) CleanupOldLogs(retentionDays int) error {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result := as.db.Where("created_at < ?", cutoffDate).Delete(&AuditLog{})
	if result.Error != nil {
		return result.Error
	}

	if as.logger != nil {
		as.logger.Printf("Cleaned up %d audit logs older than %d days",
			result.RowsAffected, retentionDays)
	}

	return nil
}
