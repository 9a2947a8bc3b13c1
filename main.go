package main

import (
	"log"
	"time"

	"backend_tablets/api"
	"backend_tablets/config"
	"backend_tablets/database"
	"backend_tablets/middleware"
	"backend_tablets/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// initDB initializes the database connection and schema.
func initDB() {
	log.Println("Initializing the database...")

	if err := database.CreateDatabaseIfNotExists(); err != nil {
		log.Fatal("Could not create the database: ", err)
	}

	if err := database.ConnectDatabase(); err != nil {
		log.Fatal("Could not connect to the database: ", err)
	}

	// The audit log lives in the services package; migrate it here
	if err := database.GetDB().AutoMigrate(&services.AuditLog{}); err != nil {
		log.Fatal("Audit log migration failed: ", err)
	}

	log.Println("Database initialized")
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Could not load configuration: ", err)
	}

	initDB()

	if cfg.Redis.Enabled {
		if err := database.InitRedis(); err != nil {
			log.Printf("Redis unavailable, rate limiting disabled: %v", err)
		}
	}

	db := database.GetDB()

	auditService := services.NewAuditService(db, log.Default())
	fleetService := services.NewFleetService(db, auditService)
	importService := services.NewImportService(db, fleetService, auditService)
	reportService := services.NewReportService(fleetService)

	telegramClient, err := services.NewTelegramClient(
		cfg.External.TelegramBotToken, cfg.External.TelegramChatID)
	if err != nil {
		log.Printf("Telegram unavailable, alerts are log-only: %v", err)
	}
	alertService := services.NewAlertService(db, telegramClient,
		cfg.Alerts.MaintenanceMaxDays, cfg.Alerts.CronSpec)
	if err := alertService.Start(); err != nil {
		log.Printf("Could not start the alert scheduler: %v", err)
	}
	defer alertService.Stop()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
	}))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "success",
			"message":  "pong",
			"database": "connected",
		})
	})

	tabletAPI := api.NewTabletAPI(fleetService, reportService)
	assignmentAPI := api.NewAssignmentAPI(fleetService)
	maintenanceAPI := api.NewMaintenanceAPI(db, fleetService)
	professionalAPI := api.NewProfessionalAPI(db)
	importAPI := api.NewImportAPI(importService)
	auditAPI := api.NewAuditAPI(auditService)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/tablets", tabletAPI.GetTablets)
		apiGroup.POST("/tablets", tabletAPI.CreateTablet)
		apiGroup.PUT("/tablets/:id", tabletAPI.UpdateTablet)
		apiGroup.DELETE("/tablets/:id", tabletAPI.DeleteTablet)
		apiGroup.GET("/tablets/:id/history", tabletAPI.GetTabletHistory)
		apiGroup.GET("/tablets/export", tabletAPI.ExportTablets)

		apiGroup.POST("/assignments", assignmentAPI.OpenAssignment)
		apiGroup.POST("/assignments/close", assignmentAPI.CloseAssignment)

		apiGroup.GET("/maintenances", maintenanceAPI.GetMaintenances)
		apiGroup.POST("/maintenances/entry", maintenanceAPI.EnterMaintenance)
		apiGroup.POST("/maintenances/exit", maintenanceAPI.ExitMaintenance)
		apiGroup.POST("/maintenances/ticket", maintenanceAPI.AttachTicket)

		apiGroup.GET("/professionals", professionalAPI.GetProfessionals)
		apiGroup.POST("/professionals", professionalAPI.CreateProfessional)
		apiGroup.DELETE("/professionals/:id", professionalAPI.DeleteProfessional)

		importLimit := middleware.RateLimit(middleware.RateLimitConfig{
			Requests: 5,
			Window:   time.Minute,
		})
		apiGroup.POST("/import", importLimit, importAPI.ImportRows)
		apiGroup.POST("/import/file", importLimit, importAPI.ImportFile)

		apiGroup.GET("/audit", auditAPI.GetAuditLogs)
	}

	log.Printf("Server listening on port %s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatal("Server failed: ", err)
	}
}
