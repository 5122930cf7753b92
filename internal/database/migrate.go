package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ContestModels lists every table owned by the contest engine.
func ContestModels() []interface{} {
	return []interface{}{
		&models.Contest{},
		&models.Problem{},
		&models.TestCase{},
		&models.Question{},
		&models.Registration{},
		&models.ContestSession{},
		&models.Violation{},
		&models.ContestSubmission{},
		&models.ContestResult{},
	}
}

// Migrate creates or updates the contest tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(ContestModels()...); err != nil {
		return fmt.Errorf("failed to migrate contest schema: %w", err)
	}
	return nil
}
