package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"backend_tablets/services"
)

// AuditAPI exposes the read side of the audit log.
type AuditAPI struct {
	Audit *services.AuditService
}

// NewAuditAPI creates a new AuditAPI.
func NewAuditAPI(audit *services.AuditService) *AuditAPI {
	return &AuditAPI{Audit: audit}
}

// GetAuditLogs lists audit entries, newest first, with optional filters.
func (api *AuditAPI) GetAuditLogs(c *gin.Context) {
	filters := services.AuditFilters{
		Actor:    c.Query("actor"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}

	if raw := c.Query("resource_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			resourceID := uint(id)
			filters.ResourceID = &resourceID
		}
	}
	if raw := c.Query("success"); raw != "" {
		success := raw == "true"
		filters.Success = &success
	}
	if raw := c.Query("start_date"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.StartDate = t
		}
	}
	if raw := c.Query("end_date"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.EndDate = t.Add(24*time.Hour - time.Second)
		}
	}

	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filters.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, err := api.Audit.GetAuditLogs(filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs, "count": len(logs)})
}
