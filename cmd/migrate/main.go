package main

import (
	"github.com/sirupsen/logrus" // Logging library

	"github.com/The-Quan/atm-banking-2/internal/config" // Custom import path (Config)
	"github.com/The-Quan/atm-banking-2/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if cfg.DBDriver == config.DriverMemory {
		logrus.Info("DB_DRIVER=memory has no schema to migrate")
		return
	}
	gdb, err := db.Open(cfg) // Connect with the configured driver
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	defer db.Close(gdb)
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("failed to migrate database: %v", err)
	}
	logrus.WithField("driver", cfg.DBDriver).Info("Database migrated successfully")
}
