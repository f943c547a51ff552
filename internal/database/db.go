package database

import (
	"gstbooks/internal/logger"
	"gstbooks/internal/model"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection opens the postgres pool and installs the tracing plugin.
func NewConnection(dsn string) (*gorm.DB, error) {
	log := logger.WithComponent("database")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Warn().Err(pluginErr).Msg("connected but failed to install otelgorm plugin")
	}

	return db, nil
}

// Migrate creates or updates the ledger schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.CompanySettings{},
		&model.ChartOfAccount{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.Payment{},
		&model.LedgerEntry{},
		&model.VoucherSequence{},
		&model.TDSChallan{},
		&model.TDSChallanEntry{},
		&model.TDSReturn{},
		&model.AuditLog{},
	)
}
