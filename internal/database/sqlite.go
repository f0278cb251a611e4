package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	"github.com/MarcoPoloResearchLab/unfold/internal/ids"
	"github.com/MarcoPoloResearchLab/unfold/internal/runs"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, ids.NewUUIDProvider(), logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	models := make([]any, 0, 16)
	models = append(models, identity.Models()...)
	models = append(models, exhibitions.Models()...)
	models = append(models, &access.AccessGrant{})
	models = append(models, runs.Models()...)
	models = append(models, &migrationRecord{})
	return db.AutoMigrate(models...)
}
