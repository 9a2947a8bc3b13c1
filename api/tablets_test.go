package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backend_tablets/database"
	"backend_tablets/models"
	"backend_tablets/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	require.NoError(t, db.AutoMigrate(&services.AuditLog{}))
	require.NoError(t, database.ApplyLedgerIndexes(db))
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	auditService := services.NewAuditService(db, nil)
	fleetService := services.NewFleetService(db, auditService)
	importService := services.NewImportService(db, fleetService, auditService)
	reportService := services.NewReportService(fleetService)

	tabletAPI := NewTabletAPI(fleetService, reportService)
	assignmentAPI := NewAssignmentAPI(fleetService)
	maintenanceAPI := NewMaintenanceAPI(db, fleetService)
	professionalAPI := NewProfessionalAPI(db)
	importAPI := NewImportAPI(importService)
	auditAPI := NewAuditAPI(auditService)

	api := router.Group("/api")
	{
		api.GET("/tablets", tabletAPI.GetTablets)
		api.POST("/tablets", tabletAPI.CreateTablet)
		api.PUT("/tablets/:id", tabletAPI.UpdateTablet)
		api.DELETE("/tablets/:id", tabletAPI.DeleteTablet)
		api.GET("/tablets/:id/history", tabletAPI.GetTabletHistory)
		api.GET("/tablets/export", tabletAPI.ExportTablets)

		api.POST("/assignments", assignmentAPI.OpenAssignment)
		api.POST("/assignments/close", assignmentAPI.CloseAssignment)

		api.GET("/maintenances", maintenanceAPI.GetMaintenances)
		api.POST("/maintenances/entry", maintenanceAPI.EnterMaintenance)
		api.POST("/maintenances/exit", maintenanceAPI.ExitMaintenance)
		api.POST("/maintenances/ticket", maintenanceAPI.AttachTicket)

		api.GET("/professionals", professionalAPI.GetProfessionals)
		api.POST("/professionals", professionalAPI.CreateProfessional)
		api.DELETE("/professionals/:id", professionalAPI.DeleteProfessional)

		api.POST("/import", importAPI.ImportRows)

		api.GET("/audit", auditAPI.GetAuditLogs)
	}

	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateTabletEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	w := doJSON(t, router, http.MethodPost, "/api/tablets", gin.H{
		"tombamento":    "T-001",
		"serial_number": "SN-1",
		"model":         "Galaxy Tab A9",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])

	// Duplicate asset tag answers 409
	w = doJSON(t, router, http.MethodPost, "/api/tablets", gin.H{
		"tombamento":    "T-001",
		"serial_number": "SN-2",
		"model":         "Galaxy Tab A9",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListTabletsEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tablet := &models.Tablet{Tombamento: "T-001", SerialNumber: "SN-1",
		Model: "X", Status: models.StatusAvailable}
	require.NoError(t, db.Create(tablet).Error)

	w := doJSON(t, router, http.MethodGet, "/api/tablets", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "T-001", views[0]["tombamento"])
	assert.Contains(t, views[0], "maintenance_days")
}

func TestOpenAssignmentEndpointConflict(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tablet := &models.Tablet{Tombamento: "T-001", SerialNumber: "SN-1",
		Model: "X", Status: models.StatusAvailable}
	require.NoError(t, db.Create(tablet).Error)
	professional := &models.Professional{Name: "P1", CPF: "11122233344"}
	require.NoError(t, db.Create(professional).Error)

	payload := gin.H{"tablet_id": tablet.ID, "professional_id": professional.ID}

	w := doJSON(t, router, http.MethodPost, "/api/assignments", payload)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/assignments", payload)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCloseAssignmentEndpointNoOp(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tablet := &models.Tablet{Tombamento: "T-001", SerialNumber: "SN-1",
		Model: "X", Status: models.StatusAvailable}
	require.NoError(t, db.Create(tablet).Error)

	w := doJSON(t, router, http.MethodPost, "/api/assignments/close",
		gin.H{"tablet_id": tablet.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["closed"])
}

func TestMaintenanceEndpoints(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tablet := &models.Tablet{Tombamento: "T-001", SerialNumber: "SN-1",
		Model: "X", Status: models.StatusAvailable}
	require.NoError(t, db.Create(tablet).Error)

	// Exit with nothing open answers 400
	w := doJSON(t, router, http.MethodPost, "/api/maintenances/exit",
		gin.H{"tablet_id": tablet.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/maintenances/entry",
		gin.H{"tablet_id": tablet.ID, "reason": "screen"})
	assert.Equal(t, http.StatusCreated, w.Code)

	var receipt map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, true, receipt["ok"])
	assert.NotNil(t, receipt["maintenance_id"])
	assert.Contains(t, receipt, "tablet")
	assert.Contains(t, receipt, "last_professional")

	maintenanceID := uint(receipt["maintenance_id"].(float64))
	w = doJSON(t, router, http.MethodPost, "/api/maintenances/ticket",
		gin.H{"maintenance_id": maintenanceID, "ticket": "CH-1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/maintenances/exit",
		gin.H{"tablet_id": tablet.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	var exit map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exit))
	assert.Equal(t, true, exit["ok"])
	assert.Equal(t, false, exit["restored_owner"])
}

func TestHistoryEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tablet := &models.Tablet{Tombamento: "T-001", SerialNumber: "SN-1",
		Model: "X", Status: models.StatusAvailable}
	require.NoError(t, db.Create(tablet).Error)

	w := doJSON(t, router, http.MethodGet, "/api/tablets/1/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var timeline []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &timeline))
	require.Len(t, timeline, 1)
	assert.Equal(t, "create", timeline[0]["type"])
	assert.Equal(t, "Tablet Cadastrado", timeline[0]["info"])

	w = doJSON(t, router, http.MethodGet, "/api/tablets/999/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	// Empty payload answers 400
	w := doJSON(t, router, http.MethodPost, "/api/import",
		gin.H{"rows": []gin.H{}, "mode": models.StatusInUse})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/import", gin.H{
		"mode": models.StatusInUse,
		"rows": []gin.H{{
			"tombamento": "T-001",
			"nome":       "Maria Silva",
			"cpf":        "111.222.333-44",
		}},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["tablets_new"])
	assert.Equal(t, float64(1), stats["profs_new"])
	assert.Equal(t, float64(1), stats["links"])
	assert.Equal(t, float64(0), stats["errors"])

	var tablets int64
	require.NoError(t, db.Model(&models.Tablet{}).Count(&tablets).Error)
	assert.Equal(t, int64(1), tablets)
}

func TestProfessionalEndpoints(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	w := doJSON(t, router, http.MethodPost, "/api/professionals",
		gin.H{"name": "Maria Silva", "cpf": "111.222.333-44"})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Same tax id, different formatting: still a duplicate
	w = doJSON(t, router, http.MethodPost, "/api/professionals",
		gin.H{"name": "Outra Maria", "cpf": "11122233344"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/professionals", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "11122233344", list[0]["cpf"])

	w = doJSON(t, router, http.MethodDelete, "/api/professionals/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tablet := &models.Tablet{Tombamento: "T-001", SerialNumber: "SN-1",
		Model: "X", Status: models.StatusAvailable}
	require.NoError(t, db.Create(tablet).Error)

	w := doJSON(t, router, http.MethodGet, "/api/tablets/export", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestAuditEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	// A mutation leaves an audit trail behind
	w := doJSON(t, router, http.MethodPost, "/api/tablets", gin.H{
		"tombamento":    "T-001",
		"serial_number": "SN-1",
		"model":         "X",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/audit?action=tablet.create", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
}
