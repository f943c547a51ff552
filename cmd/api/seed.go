package main

import (
	"fmt"

	"gstbooks/internal/logger"
	"gstbooks/internal/repository"
	"gstbooks/internal/service"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed-accounts",
	Short: "Install the default chart of accounts",
	Long: `Creates any missing default accounts and fills unset default account ids in
the company settings. Running it again changes nothing.`,
	Example: `  gstbooks seed-accounts`,
	RunE:    runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	accounts := service.NewAccountService(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewSettingsRepository(db),
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db),
	)
	res, err := accounts.SeedDefaultAccounts(cmd.Context(), "")
	if err != nil {
		return err
	}

	log := logger.WithComponent("seed")
	log.Info().
		Int("created", res.Created).
		Int("existing", res.Existing).
		Int("settings_updated", res.SettingsUpdated).
		Msg("default chart of accounts installed")
	fmt.Fprintf(cmd.OutOrStdout(), "created %d, existing %d, settings updated %d\n", res.Created, res.Existing, res.SettingsUpdated)
	return nil
}
