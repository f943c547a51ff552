package repository

import (
	"context"
	"errors"

	"gstbooks/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository interface {
	// Get returns the settings row, creating it with defaults on first use.
	Get(ctx context.Context) (*model.CompanySettings, error)
	Save(ctx context.Context, settings *model.CompanySettings) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*model.CompanySettings, error) {
	db := GetDB(ctx, r.db)

	var settings model.CompanySettings
	err := db.Order("updated_at").First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = model.CompanySettings{LedgerPostingOn: model.PostOnSent, EnableTDS: true, EnableTCS: true}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *model.CompanySettings) error {
	return GetDB(ctx, r.db).Save(settings).Error
}
