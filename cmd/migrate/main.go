package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"reader/internal/config"
	"reader/internal/storage/ch"
	"reader/migrations"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	// Migrations always target ClickHouse regardless of the configured backend
	if os.Getenv("READER_STORAGE_BACKEND") == "" {
		os.Setenv("READER_STORAGE_BACKEND", config.BackendClickHouse)
	}
	if os.Getenv("CLICKHOUSE_HOST") == "" {
		os.Setenv("CLICKHOUSE_HOST", "localhost")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := ch.OpenSQL(cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase,
		cfg.ClickHouseUser, cfg.ClickHousePassword, cfg.ClickHouseUseTLS)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to ClickHouse successfully")

	// Get command from arguments (default to "up")
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if err := migrations.Setup(); err != nil {
		log.Fatalf("Failed to configure goose: %v", err)
	}

	// Run goose command
	log.Printf("Running migrations: %s", command)
	switch command {
	case "up":
		if err := goose.Up(db, "."); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations completed successfully")
	case "down":
		if err := goose.Down(db, "."); err != nil {
			log.Fatalf("Failed to rollback migration: %v", err)
		}
		log.Println("Rollback completed successfully")
	case "status":
		if err := goose.Status(db, "."); err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
	case "version":
		version, err := goose.GetDBVersion(db)
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		log.Printf("Current migration version: %d", version)
	default:
		log.Fatalf("Unknown command: %s. Available commands: up, down, status, version", command)
	}
}
