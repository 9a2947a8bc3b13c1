package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_tablets/models"
	"backend_tablets/services"
)

// ProfessionalAPI exposes the professional directory.
type ProfessionalAPI struct {
	DB *gorm.DB
}

// NewProfessionalAPI creates a new ProfessionalAPI.
func NewProfessionalAPI(db *gorm.DB) *ProfessionalAPI {
	return &ProfessionalAPI{DB: db}
}

// GetProfessionals lists professionals ordered by name.
func (api *ProfessionalAPI) GetProfessionals(c *gin.Context) {
	query := api.DB.Order("name ASC")

	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ? OR cpf LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var professionals []models.Professional
	if err := query.Find(&professionals).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, professionals)
}

type createProfessionalRequest struct {
	Name         string `json:"name"`
	CPF          string `json:"cpf"`
	Municipality string `json:"municipality"`
}

// CreateProfessional registers a professional. 409 on a duplicate tax id.
func (api *ProfessionalAPI) CreateProfessional(c *gin.Context) {
	var req createProfessionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	cpf := services.CleanCPF(req.CPF)
	if cpf != "" {
		var dup int64
		if err := api.DB.Model(&models.Professional{}).
			Where("replace(replace(replace(cpf, '.', ''), '-', ''), ' ', '') = ?", cpf).
			Count(&dup).Error; err != nil {
			respondError(c, err)
			return
		}
		if dup > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "a professional with this cpf already exists"})
			return
		}
	}

	professional := models.Professional{
		Name:         req.Name,
		CPF:          cpf,
		Municipality: req.Municipality,
	}
	if err := api.DB.Create(&professional).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": professional.ID})
}

// DeleteProfessional removes a professional unless custody rows reference them.
func (api *ProfessionalAPI) DeleteProfessional(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var linked int64
	if err := api.DB.Model(&models.Assignment{}).
		Where("professional_id = ?", id).
		Count(&linked).Error; err != nil {
		respondError(c, err)
		return
	}
	if linked > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "professional has custody history and cannot be removed"})
		return
	}

	if err := api.DB.Delete(&models.Professional{}, id).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
