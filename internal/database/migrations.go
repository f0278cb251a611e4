package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSnapshotLegacyExhibitions = "2026-03-01_snapshot_legacy_exhibitions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, ids.Provider) error
}

func applyMigrations(db *gorm.DB, idProvider ids.Provider, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSnapshotLegacyExhibitions, apply: snapshotLegacyExhibitions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx, idProvider); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// snapshotLegacyExhibitions gives every non-draft exhibition without a version a
// sequence-1 snapshot so runs can pin it. Day content stays in the exhibits table.
func snapshotLegacyExhibitions(db *gorm.DB, idProvider ids.Provider) error {
	var legacy []exhibitions.Exhibition
	if err := db.
		Where("status <> ?", exhibitions.StatusDraft).
		Where("NOT EXISTS (SELECT 1 FROM exhibition_versions v WHERE v.exhibition_id = exhibitions.id)").
		Find(&legacy).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, exhibition := range legacy {
		versionID, err := idProvider.NewID()
		if err != nil {
			return err
		}
		version := exhibitions.Version{
			ID:           versionID,
			ExhibitionID: exhibition.ID,
			Sequence:     1,
			Type:         exhibition.Type,
			TotalDays:    exhibition.TotalDays,
			Visibility:   exhibition.Visibility,
			Status:       exhibition.Status,
			CreatedAt:    now,
		}
		if err := db.Create(&version).Error; err != nil {
			return err
		}
	}
	return nil
}
