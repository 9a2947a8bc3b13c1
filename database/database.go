package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"backend_tablets/models"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// CreateDatabaseIfNotExists creates the database when it does not exist yet.
func CreateDatabaseIfNotExists() error {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "")
	dbname := getEnv("DB_NAME", "tablets_db")
	sslmode := getEnv("DB_SSLMODE", "disable")

	// Connect to the default postgres database for the admin statement
	adminDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=%s",
		host, port, user, password, sslmode)

	db, err := sql.Open("postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("could not connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("could not ping PostgreSQL: %w", err)
	}

	var exists bool
	query := "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1);"
	err = db.QueryRow(query, dbname).Scan(&exists)
	if err != nil {
		return fmt.Errorf("could not check whether database exists: %w", err)
	}

	if exists {
		log.Printf("Database '%s' already exists", dbname)
		return nil
	}

	createQuery := fmt.Sprintf("CREATE DATABASE %s;", dbname)
	_, err = db.Exec(createQuery)
	if err != nil {
		return fmt.Errorf("could not create database '%s': %w", dbname, err)
	}

	log.Printf("Database '%s' created", dbname)
	return nil
}

// ConnectDatabase opens the PostgreSQL connection and runs the migrations.
func ConnectDatabase() error {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "")
	dbname := getEnv("DB_NAME", "tablets_db")
	sslmode := getEnv("DB_SSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	logLevel := logger.Warn
	if getEnv("DEBUG_MODE", "") == "true" {
		logLevel = logger.Info
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		return fmt.Errorf("could not connect to the database: %w", err)
	}

	log.Println("Connected to PostgreSQL")

	if err := autoMigrate(); err != nil {
		return fmt.Errorf("automigration failed: %w", err)
	}

	if err := ApplyLedgerIndexes(DB); err != nil {
		return fmt.Errorf("ledger indexes failed: %w", err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDB returns the database handle.
func GetDB() *gorm.DB {
	return DB
}

func autoMigrate() error {
	if err := DB.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}

	log.Println("Model automigration completed")
	return nil
}
