package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend_tablets/services"
)

// AssignmentAPI exposes custody open/close.
type AssignmentAPI struct {
	Fleet *services.FleetService
}

// NewAssignmentAPI creates a new AssignmentAPI.
func NewAssignmentAPI(fleet *services.FleetService) *AssignmentAPI {
	return &AssignmentAPI{Fleet: fleet}
}

// OpenAssignment opens a custody period. 409 when the device already has an
// open custody or is in maintenance.
func (api *AssignmentAPI) OpenAssignment(c *gin.Context) {
	var input services.OpenAssignmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	assignment, err := api.Fleet.OpenAssignment(input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": assignment.ID})
}

type closeAssignmentRequest struct {
	TabletID uint   `json:"tablet_id"`
	EndDate  string `json:"end_date"`
}

// CloseAssignment closes the open custody period. Closing with none open is a
// benign no-op and still answers ok.
func (api *AssignmentAPI) CloseAssignment(c *gin.Context) {
	var req closeAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	closed, err := api.Fleet.CloseAssignment(req.TabletID, req.EndDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "closed": closed})
}
