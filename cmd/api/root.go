package main

import (
	"fmt"
	"os"

	"gstbooks/internal/config"
	"gstbooks/internal/database"
	"gstbooks/internal/logger"
	"gstbooks/internal/middleware"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "gstbooks",
	Short: "GST invoicing and ledger service",
	Long: `gstbooks computes GST, TDS and TCS on invoices, posts balanced vouchers
to a double-entry ledger and tracks TDS deposits and quarterly returns.

Configuration is read from the environment, after configs/.env when present.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and installs the logger and JWT secret.
func bootstrap() (*config.Config, error) {
	log := logger.WithComponent("cmd")
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Debug().Msg("no configs/.env file found; using the process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	middleware.SetJWTSecret(cfg.JWTSecret)
	return cfg, nil
}

// openDatabase connects and brings the schema up to date.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	log := logger.WithComponent("database")

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Info().Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("connected to PostgreSQL")

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}
