package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_tablets/models"
	"backend_tablets/services"
)

// MaintenanceAPI exposes the repair ledger.
type MaintenanceAPI struct {
	DB    *gorm.DB
	Fleet *services.FleetService
}

// NewMaintenanceAPI creates a new MaintenanceAPI.
func NewMaintenanceAPI(db *gorm.DB, fleet *services.FleetService) *MaintenanceAPI {
	return &MaintenanceAPI{DB: db, Fleet: fleet}
}

// EnterMaintenance opens a repair period. The receipt carries the device
// snapshot and the evicted occupant so the caller can render a protocol.
func (api *MaintenanceAPI) EnterMaintenance(c *gin.Context) {
	var input services.EnterMaintenanceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	receipt, err := api.Fleet.EnterMaintenance(input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ok":                true,
		"maintenance_id":    receipt.MaintenanceID,
		"tablet":            receipt.Tablet,
		"last_professional": receipt.LastProfessional,
	})
}

type exitMaintenanceRequest struct {
	TabletID uint   `json:"tablet_id"`
	ExitDate string `json:"exit_date"`
}

// ExitMaintenance closes the open repair period. 400 when none is open.
func (api *MaintenanceAPI) ExitMaintenance(c *gin.Context) {
	var req exitMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	restored, err := api.Fleet.ExitMaintenance(req.TabletID, req.ExitDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "restored_owner": restored})
}

type attachTicketRequest struct {
	MaintenanceID uint   `json:"maintenance_id"`
	Ticket        string `json:"ticket"`
}

// AttachTicket writes the support ticket id onto a maintenance row.
func (api *MaintenanceAPI) AttachTicket(c *gin.Context) {
	var req attachTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	if err := api.Fleet.AttachTicket(req.MaintenanceID, req.Ticket); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetMaintenances lists repair periods, open ones first.
func (api *MaintenanceAPI) GetMaintenances(c *gin.Context) {
	query := api.DB.Preload("Tablet").Order("exit_date IS NULL DESC, entry_date DESC")

	if open := c.Query("open"); open == "true" {
		query = query.Where("exit_date IS NULL")
	}
	if tabletID := c.Query("tablet_id"); tabletID != "" {
		query = query.Where("tablet_id = ?", tabletID)
	}

	var maintenances []models.Maintenance
	if err := query.Find(&maintenances).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, maintenances)
}
