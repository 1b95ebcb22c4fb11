package db

import (
	"github.com/The-Quan/atm-banking-2/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(&domain.User{}, &domain.Account{}, &domain.Transaction{}); err != nil {
		return err
	}
	logrus.WithField("dialect", db.Dialector.Name()).Info("Migration completed.") // Log successful migration
	return nil
}
