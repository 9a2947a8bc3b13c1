package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend_tablets/services"
)

// ImportAPI exposes the bulk import reconciler.
type ImportAPI struct {
	Import *services.ImportService
}

// NewImportAPI creates a new ImportAPI.
func NewImportAPI(importService *services.ImportService) *ImportAPI {
	return &ImportAPI{Import: importService}
}

type importRequest struct {
	Rows []services.ImportRow `json:"rows"`
	Mode string               `json:"mode"`
}

// ImportRows reconciles a JSON row batch. 400 on an empty payload.
func (api *ImportAPI) ImportRows(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if len(req.Rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no rows to import"})
		return
	}

	stats, batchID, err := api.Import.Run(req.Rows, req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "batch_id": batchID, "stats": stats})
}

// ImportFile reconciles an uploaded .xlsx workbook. The batch mode comes from
// the "mode" form field.
func (api *ImportAPI) ImportFile(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	defer file.Close()

	rows, err := services.ParseWorkbook(file)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no rows to import"})
		return
	}

	stats, batchID, err := api.Import.Run(rows, c.PostForm("mode"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "batch_id": batchID, "stats": stats})
}
