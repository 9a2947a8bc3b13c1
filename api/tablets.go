package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend_tablets/services"
)

// TabletAPI exposes the device registry.
type TabletAPI struct {
	Fleet   *services.FleetService
	Reports *services.ReportService
}

// NewTabletAPI creates a new TabletAPI.
func NewTabletAPI(fleet *services.FleetService, reports *services.ReportService) *TabletAPI {
	return &TabletAPI{Fleet: fleet, Reports: reports}
}

// GetTablets returns the fleet listing with resolved occupants.
func (api *TabletAPI) GetTablets(c *gin.Context) {
	views, err := api.Fleet.ListTablets()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// CreateTablet registers a device. 409 on a duplicate asset tag or serial.
func (api *TabletAPI) CreateTablet(c *gin.Context) {
	var input services.CreateTabletInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	tablet, err := api.Fleet.CreateTablet(input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": tablet.ID})
}

// UpdateTablet changes the mutable device fields.
func (api *TabletAPI) UpdateTablet(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var input services.UpdateTabletInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	if _, err := api.Fleet.UpdateTablet(id, input); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteTablet removes a device and both of its ledgers.
func (api *TabletAPI) DeleteTablet(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := api.Fleet.DeleteTablet(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetTabletHistory returns the reconstructed device timeline, newest first.
func (api *TabletAPI) GetTabletHistory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	timeline, err := api.Fleet.Timeline(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, timeline)
}

// ExportTablets streams the fleet listing as an .xlsx download.
func (api *TabletAPI) ExportTablets(c *gin.Context) {
	buf, err := api.Reports.ExportInventory()
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+services.ExportFileName())
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		buf.Bytes())
}
